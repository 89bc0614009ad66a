// Package ranking derives the ordered top-N view over user scores.
package ranking

import (
	"bytes"
	"sort"

	"github.com/and161185/scorekeeper/internal/model"
)

// DefaultLimit is the size of the ranking pushed after every mutation.
const DefaultLimit = 10

// MaxLimit caps caller-provided limits.
const MaxLimit = 100

// ClampLimit maps n into [1, MaxLimit]; n <= 0 selects DefaultLimit.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

// Less orders by points desc, then arrival sequence asc, then id asc.
func Less(a, b *model.UserScore) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return bytes.Compare(a.ID.Bytes(), b.ID.Bytes()) < 0
}

// Top returns up to n scores in ranking order. The input is not modified.
func Top(scores []model.UserScore, n int) []model.UserScore {
	if n <= 0 || len(scores) == 0 {
		return []model.UserScore{}
	}
	sorted := make([]model.UserScore, len(scores))
	copy(sorted, scores)
	sort.SliceStable(sorted, func(i, j int) bool { return Less(&sorted[i], &sorted[j]) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Entries converts ordered scores into 1-based rank entries.
func Entries(scores []model.UserScore) []model.RankEntry {
	out := make([]model.RankEntry, 0, len(scores))
	for i, s := range scores {
		out = append(out, model.RankEntry{
			Rank:   i + 1,
			ID:     s.ID,
			Name:   s.Name,
			Points: s.Points,
			Level:  s.Level,
			Sales:  s.Sales,
		})
	}
	return out
}
