package ranking

import (
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/scorekeeper/internal/model"
)

func score(seq, points int64) model.UserScore {
	return model.UserScore{ID: uuid.Must(uuid.NewV4()), Seq: seq, Points: points}
}

func TestTop_OrdersByPointsThenArrival(t *testing.T) {
	a := score(1, 50)
	b := score(2, 200)
	c := score(3, 200)
	d := score(4, 10)

	got := Top([]model.UserScore{a, b, c, d}, 3)
	require.Len(t, got, 3)
	require.Equal(t, b.ID, got[0].ID)
	require.Equal(t, c.ID, got[1].ID)
	require.Equal(t, a.ID, got[2].ID)
}

func TestTop_Idempotent(t *testing.T) {
	in := []model.UserScore{score(1, 5), score(2, 5), score(3, 7), score(4, 1)}
	first := Top(in, 10)
	second := Top(in, 10)
	require.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		require.GreaterOrEqual(t, first[i-1].Points, first[i].Points)
	}
}

func TestTop_DoesNotMutateInput(t *testing.T) {
	in := []model.UserScore{score(1, 1), score(2, 9)}
	_ = Top(in, 2)
	require.Equal(t, int64(1), in[0].Points)
}

func TestTop_EmptyAndZero(t *testing.T) {
	require.Empty(t, Top(nil, 5))
	require.Empty(t, Top([]model.UserScore{score(1, 1)}, 0))
}

func TestTop_SameSeqFallsBackToID(t *testing.T) {
	lo := model.UserScore{ID: uuid.FromStringOrNil("00000000-0000-4000-8000-000000000001"), Points: 3}
	hi := model.UserScore{ID: uuid.FromStringOrNil("00000000-0000-4000-8000-000000000002"), Points: 3}
	got := Top([]model.UserScore{hi, lo}, 2)
	require.Equal(t, lo.ID, got[0].ID)
}

func TestClampLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, ClampLimit(0))
	require.Equal(t, DefaultLimit, ClampLimit(-3))
	require.Equal(t, 7, ClampLimit(7))
	require.Equal(t, MaxLimit, ClampLimit(1000))
}

func TestEntries_AssignsRanks(t *testing.T) {
	s := []model.UserScore{{Name: "a", Points: 9, Level: 1}, {Name: "b", Points: 3, Level: 1, Sales: 2}}
	e := Entries(s)
	require.Equal(t, 1, e[0].Rank)
	require.Equal(t, 2, e[1].Rank)
	require.Equal(t, int64(2), e[1].Sales)
}
