// Package level derives user levels from point totals.
package level

import (
	"fmt"

	"github.com/and161185/scorekeeper/internal/errs"
)

// DefaultUnit is the number of points per level.
const DefaultUnit int64 = 1000

// Rule is the fixed-unit leveling rule: level = floor(points/unit) + 1.
type Rule struct {
	unit int64
}

// NewRule constructs a rule with the given points-per-level unit.
func NewRule(unit int64) (Rule, error) {
	if unit <= 0 {
		return Rule{}, fmt.Errorf("%w: level unit must be positive, got %d", errs.ErrValidation, unit)
	}
	return Rule{unit: unit}, nil
}

// Unit returns points per level.
func (r Rule) Unit() int64 {
	if r.unit <= 0 {
		return DefaultUnit
	}
	return r.unit
}

// Level returns the level for a point total. Negative totals map to level 1.
func (r Rule) Level(points int64) int {
	if points < 0 {
		return 1
	}
	return int(points/r.Unit()) + 1
}

// Progress describes the position within the current level.
type Progress struct {
	Level         int   `json:"level"`
	IntoLevel     int64 `json:"into_level"`
	ToNextLevel   int64 `json:"to_next_level"`
	PercentToNext int   `json:"percent_to_next"`
}

// Progress computes how far points are into the current level.
func (r Rule) Progress(points int64) Progress {
	if points < 0 {
		points = 0
	}
	u := r.Unit()
	into := points % u
	return Progress{
		Level:         r.Level(points),
		IntoLevel:     into,
		ToNextLevel:   u - into,
		PercentToNext: int(into * 100 / u),
	}
}
