package level

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/scorekeeper/internal/errs"
)

func TestNewRule_RejectsNonPositive(t *testing.T) {
	_, err := NewRule(0)
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = NewRule(-5)
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestRule_Level(t *testing.T) {
	r, err := NewRule(1000)
	require.NoError(t, err)

	cases := []struct {
		points int64
		want   int
	}{
		{0, 1}, {999, 1}, {1000, 2}, {1050, 2}, {2999, 3}, {3000, 4}, {-1, 1},
	}
	for _, c := range cases {
		require.Equal(t, c.want, r.Level(c.points), "points=%d", c.points)
	}
}

func TestRule_ZeroValueUsesDefault(t *testing.T) {
	var r Rule
	require.Equal(t, DefaultUnit, r.Unit())
	require.Equal(t, 2, r.Level(1000))
}

func TestRule_Progress(t *testing.T) {
	r, err := NewRule(50)
	require.NoError(t, err)

	p := r.Progress(120)
	require.Equal(t, Progress{Level: 3, IntoLevel: 20, ToNextLevel: 30, PercentToNext: 40}, p)

	p = r.Progress(0)
	require.Equal(t, 1, p.Level)
	require.Equal(t, int64(50), p.ToNextLevel)
}

func TestRule_LevelNeverDecreasesWhileAwarding(t *testing.T) {
	r, err := NewRule(1000)
	require.NoError(t, err)

	var total int64
	prev := r.Level(0)
	for _, d := range []int64{1, 999, 3, 1500, 250, 7000, 1} {
		total += d
		lvl := r.Level(total)
		require.GreaterOrEqual(t, lvl, prev)
		require.Equal(t, int(total/1000)+1, lvl)
		prev = lvl
	}
}
