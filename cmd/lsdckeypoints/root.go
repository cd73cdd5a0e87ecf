package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"lsdckeypoints/pkg/config"
	"lsdckeypoints/pkg/logger"
)

// app is the state shared by every subcommand once the root pre-run finished.
type app struct {
	configPath string
	logLevel   string
	logFile    string

	cfg    *config.Config
	log    *slog.Logger
	closer io.Closer
}

// newRootCommand creates the root command and the app it shares with every
// subcommand. The caller releases the log file with app.close once Execute
// returns, whether or not a subcommand failed.
func newRootCommand() (*cobra.Command, *app) {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "lsdckeypoints",
		Short:         "Lumbar spine keypoint heatmap encoder and loss evaluator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "config.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Also write JSON logs to this rotated file")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.initialize(cmd)
	}
	rootCmd.AddCommand(
		encodeCommand(a),
		radiusCommand(a),
		lossCommand(a),
		configCommand(a),
	)
	return rootCmd, a
}

// close releases the rotated log file. It is safe to call more than once.
func (a *app) close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

// initialize loads the configuration, applies flag overrides and sets up logging.
func (a *app) initialize(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if cmd.Flags().Changed("log-file") {
		cfg.Logging.File = a.logFile
	}

	log, closer, err := logger.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg, a.log, a.closer = cfg, log, closer
	return nil
}
