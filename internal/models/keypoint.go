// Package models holds the plain data types shared by the dataset, encoder and
// loss packages.
package models

import "fmt"

// Level is one of the five lumbar intervertebral disc levels.
type Level int

const (
	L1L2 Level = iota
	L2L3
	L3L4
	L4L5
	L5S1
)

// NumLevels is the fixed number of annotated disc levels.
const NumLevels = 5

// Levels lists every level in channel order. Heatmap channel i belongs to Levels[i].
var Levels = [NumLevels]Level{L1L2, L2L3, L3L4, L4L5, L5S1}

var levelNames = [NumLevels]string{"L1/L2", "L2/L3", "L3/L4", "L4/L5", "L5/S1"}

// String returns the annotation name of the level, e.g. "L4/L5".
func (l Level) String() string {
	if l < 0 || int(l) >= NumLevels {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// Valid reports whether l is one of the five known levels.
func (l Level) Valid() bool {
	return l >= 0 && int(l) < NumLevels
}

// ParseLevel maps an annotation name like "L5/S1" to its Level.
func ParseLevel(name string) (Level, error) {
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("unknown level %q", name)
}

// AbsentCoord is the value written for a missing keypoint in the legacy array form.
const AbsentCoord = -1.0

// Keypoint is an optional 2D point. Present is false for levels that were not
// annotated or were dropped by augmentation.
type Keypoint struct {
	X, Y    float64
	Present bool
}

// Point returns a present keypoint.
func Point(x, y float64) Keypoint {
	return Keypoint{X: x, Y: y, Present: true}
}

// LabeledPoint is a keypoint tagged with its disc level, the unit an
// augmentation transform moves around.
type LabeledPoint struct {
	Level Level
	X, Y  float64
}

// Keypoints is the per-level keypoint set of one example.
type Keypoints [NumLevels]Keypoint

// Labeled returns the present keypoints as labeled points in level order.
func (k Keypoints) Labeled() []LabeledPoint {
	out := make([]LabeledPoint, 0, NumLevels)
	for i, kp := range k {
		if kp.Present {
			out = append(out, LabeledPoint{Level: Level(i), X: kp.X, Y: kp.Y})
		}
	}
	return out
}

// FromLabeled rebuilds a per-level set. Levels missing from points stay absent;
// when a level appears twice the last point wins.
func FromLabeled(points []LabeledPoint) Keypoints {
	var k Keypoints
	for _, p := range points {
		if !p.Level.Valid() {
			continue
		}
		k[p.Level] = Point(p.X, p.Y)
	}
	return k
}

// Array returns the legacy [5][2] form with (-1, -1) for absent levels.
func (k Keypoints) Array() [NumLevels][2]float64 {
	var out [NumLevels][2]float64
	for i, kp := range k {
		if kp.Present {
			out[i] = [2]float64{kp.X, kp.Y}
		} else {
			out[i] = [2]float64{AbsentCoord, AbsentCoord}
		}
	}
	return out
}

// Count returns how many levels are present.
func (k Keypoints) Count() int {
	n := 0
	for _, kp := range k {
		if kp.Present {
			n++
		}
	}
	return n
}
