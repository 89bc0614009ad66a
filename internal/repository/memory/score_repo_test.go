package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/scorekeeper/internal/errs"
	"github.com/and161185/scorekeeper/internal/model"
)

func newUser(t *testing.T, r *ScoreRepo, points int64) *model.UserScore {
	t.Helper()
	u := &model.UserScore{ID: uuid.Must(uuid.NewV4()), Name: "u", Points: points, Level: 1}
	require.NoError(t, r.Create(context.Background(), u))
	return u
}

func TestScoreRepo_CreateGet(t *testing.T) {
	r := NewScoreRepo()
	ctx := context.Background()
	u := newUser(t, r, 0)
	require.Equal(t, int64(1), u.Seq)
	require.False(t, u.CreatedAt.IsZero())

	got, err := r.Get(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	require.ErrorIs(t, r.Create(ctx, &model.UserScore{ID: u.ID}), errs.ErrAlreadyExists)

	_, err = r.Get(ctx, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestScoreRepo_SnapshotsDoNotAlias(t *testing.T) {
	r := NewScoreRepo()
	ctx := context.Background()
	u := newUser(t, r, 0)

	got, err := r.Get(ctx, u.ID)
	require.NoError(t, err)
	got.Achievements = append(got.Achievements, "x")

	again, err := r.Get(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, again.Achievements)
}

func TestScoreRepo_UpdateErrorLeavesRecord(t *testing.T) {
	r := NewScoreRepo()
	ctx := context.Background()
	u := newUser(t, r, 10)

	boom := errors.New("boom")
	_, err := r.Update(ctx, u.ID, func(s *model.UserScore) ([]model.PointEvent, error) {
		s.Points = 999
		return []model.PointEvent{{Delta: 989, Reason: "award"}}, boom
	})
	require.ErrorIs(t, err, boom)

	got, err := r.Get(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), got.Points)
	hist, err := r.History(ctx, u.ID, 5)
	require.NoError(t, err)
	require.Empty(t, hist)

	_, err = r.Update(ctx, uuid.Must(uuid.NewV4()), func(*model.UserScore) ([]model.PointEvent, error) { return nil, nil })
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestScoreRepo_UpdateKeepsIdentity(t *testing.T) {
	r := NewScoreRepo()
	u := newUser(t, r, 0)

	got, err := r.Update(context.Background(), u.ID, func(s *model.UserScore) ([]model.PointEvent, error) {
		s.Seq = 42
		s.ID = uuid.Nil
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, u.Seq, got.Seq)
}

func TestScoreRepo_ConcurrentUpdatesSameUser(t *testing.T) {
	r := NewScoreRepo()
	ctx := context.Background()
	u := newUser(t, r, 0)

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Update(ctx, u.ID, func(s *model.UserScore) ([]model.PointEvent, error) {
				s.Points++
				return []model.PointEvent{{Delta: 1, Reason: "award"}}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := r.Get(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(n), got.Points)
	hist, err := r.History(ctx, u.ID, 2*n)
	require.NoError(t, err)
	require.Len(t, hist, n)
}

func TestScoreRepo_HistoryNewestFirst(t *testing.T) {
	r := NewScoreRepo()
	ctx := context.Background()
	u := newUser(t, r, 0)
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, reason := range []string{"award", "sale", "challenge: First"} {
		_, err := r.Update(ctx, u.ID, func(s *model.UserScore) ([]model.PointEvent, error) {
			s.Points += int64(i + 1)
			return []model.PointEvent{{Delta: int64(i + 1), Reason: reason, At: at.Add(time.Duration(i) * time.Minute)}}, nil
		})
		require.NoError(t, err)
	}
	_, err := r.Update(ctx, u.ID, func(*model.UserScore) ([]model.PointEvent, error) {
		return []model.PointEvent{{Delta: 4, Reason: "activity"}}, nil
	})
	require.NoError(t, err)

	hist, err := r.History(ctx, u.ID, 3)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	require.Equal(t, []string{"activity", "challenge: First", "sale"}, []string{hist[0].Reason, hist[1].Reason, hist[2].Reason})
	require.Equal(t, u.ID, hist[0].UserID)
	require.False(t, hist[0].At.IsZero(), "repo stamps events without a time")
	require.Equal(t, at.Add(2*time.Minute), hist[1].At)

	none, err := r.History(ctx, u.ID, 0)
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = r.History(ctx, uuid.Must(uuid.NewV4()), 5)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestScoreRepo_TopAndListIDs(t *testing.T) {
	r := NewScoreRepo()
	ctx := context.Background()
	a := newUser(t, r, 50)
	b := newUser(t, r, 200)
	c := newUser(t, r, 200)
	d := newUser(t, r, 10)

	top, err := r.Top(ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	require.Equal(t, []uuid.UUID{b.ID, c.ID, a.ID}, []uuid.UUID{top[0].ID, top[1].ID, top[2].ID})

	ids, err := r.ListIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{a.ID, b.ID, c.ID, d.ID}, ids)
}

func TestScoreRepo_CanceledContext(t *testing.T) {
	r := NewScoreRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Top(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
}
