package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"lsdckeypoints/pkg/logger"
)

// Loader fetches dataset items on a bounded pool of goroutines. Results come
// back in index order. The first error cancels the remaining fetches.
type Loader struct {
	ds      Dataset
	workers int
	log     *slog.Logger
}

// NewLoader creates a loader. workers <= 0 uses all CPUs.
func NewLoader(ds Dataset, workers int, log *slog.Logger) *Loader {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Loader{ds: ds, workers: workers, log: logger.Module(log, "loader")}
}

// Workers returns the pool size.
func (l *Loader) Workers() int {
	return l.workers
}

// Load fetches the given indices concurrently.
func (l *Loader) Load(ctx context.Context, indices []int) ([]Item, error) {
	items := make([]Item, len(indices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)

	for i, idx := range indices {
		g.Go(func() error {
			item, err := l.ds.GetItem(gctx, idx)
			if err != nil {
				return fmt.Errorf("item %d: %w", idx, err)
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// Each streams every item of the dataset, in index order, to fn. Items are
// fetched in windows of a few items per worker so memory stays bounded.
func (l *Loader) Each(ctx context.Context, fn func(index int, item Item) error) error {
	total := l.ds.Len()
	window := l.workers * 4

	for start := 0; start < total; start += window {
		end := min(start+window, total)
		indices := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			indices = append(indices, i)
		}

		items, err := l.Load(ctx, indices)
		if err != nil {
			return err
		}
		for i, item := range items {
			if err := fn(indices[i], item); err != nil {
				return err
			}
		}
		l.log.Info("progress", "done", end, "total", total)
	}
	return nil
}
