// Package memory contains an in-process implementation of repository interfaces.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/scorekeeper/internal/errs"
	"github.com/and161185/scorekeeper/internal/model"
	"github.com/and161185/scorekeeper/internal/ranking"
	"github.com/and161185/scorekeeper/internal/repository"
)

type entry struct {
	mu     sync.Mutex
	u      model.UserScore
	events []model.PointEvent // oldest first
}

// ScoreRepo keeps scores in memory with one lock per user.
type ScoreRepo struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
	seq     int64
	now     func() time.Time
}

var _ repository.ScoreRepository = (*ScoreRepo)(nil)

// NewScoreRepo constructs an empty store.
func NewScoreRepo() *ScoreRepo {
	return &ScoreRepo{entries: make(map[uuid.UUID]*entry), now: time.Now}
}

// Create inserts u and assigns its arrival sequence.
func (r *ScoreRepo) Create(ctx context.Context, u *model.UserScore) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[u.ID]; ok {
		return errs.ErrAlreadyExists
	}
	r.seq++
	now := r.now().UTC()
	u.Seq = r.seq
	u.CreatedAt, u.UpdatedAt = now, now
	r.entries[u.ID] = &entry{u: u.Clone()}
	return nil
}

func (r *ScoreRepo) lookup(id uuid.UUID) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return e, nil
}

// Get returns a snapshot of the record.
func (r *ScoreRepo) Get(ctx context.Context, id uuid.UUID) (*model.UserScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.u.Clone()
	return &out, nil
}

// Update applies fn to a working copy under the user's lock and stores it
// only if fn succeeds.
func (r *ScoreRepo) Update(ctx context.Context, id uuid.UUID, fn repository.MutateFunc) (*model.UserScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	work := e.u.Clone()
	events, err := fn(&work)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	work.ID, work.Seq, work.CreatedAt = e.u.ID, e.u.Seq, e.u.CreatedAt
	work.UpdatedAt = now
	e.u = work
	for _, ev := range events {
		ev.UserID = id
		if ev.At.IsZero() {
			ev.At = now
		}
		e.events = append(e.events, ev)
	}
	out := work.Clone()
	return &out, nil
}

// History returns up to n events, newest first.
func (r *ScoreRepo) History(ctx context.Context, id uuid.UUID, n int) ([]model.PointEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.PointEvent, 0, min(max(n, 0), len(e.events)))
	for i := len(e.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, e.events[i])
	}
	return out, nil
}

func (r *ScoreRepo) snapshot() []model.UserScore {
	r.mu.RLock()
	list := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		list = append(list, e)
	}
	r.mu.RUnlock()

	out := make([]model.UserScore, 0, len(list))
	for _, e := range list {
		e.mu.Lock()
		out = append(out, e.u.Clone())
		e.mu.Unlock()
	}
	return out
}

// Top derives the ranking from a fresh snapshot on every call.
func (r *ScoreRepo) Top(ctx context.Context, n int) ([]model.UserScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ranking.Top(r.snapshot(), n), nil
}

// ListIDs returns ids in arrival order.
func (r *ScoreRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	type pair struct {
		id  uuid.UUID
		seq int64
	}
	pairs := make([]pair, 0, len(r.entries))
	for id, e := range r.entries {
		e.mu.Lock()
		pairs = append(pairs, pair{id: id, seq: e.u.Seq})
		e.mu.Unlock()
	}
	r.mu.RUnlock()

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].seq < pairs[j].seq })
	ids := make([]uuid.UUID, len(pairs))
	for i, p := range pairs {
		ids[i] = p.id
	}
	return ids, nil
}

// PokeForTest overwrites stored fields with no normalisation and no history.
// Tests use it to simulate out-of-band edits to the underlying storage.
func (r *ScoreRepo) PokeForTest(id uuid.UUID, fn func(u *model.UserScore)) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.u)
	return nil
}
