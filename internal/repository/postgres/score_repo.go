package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/scorekeeper/internal/errs"
	"github.com/and161185/scorekeeper/internal/model"
	"github.com/and161185/scorekeeper/internal/repository"
)

// ScoreRepo implements ScoreRepository using PostgreSQL.
type ScoreRepo struct{ db *DB }

var _ repository.ScoreRepository = (*ScoreRepo)(nil)

// NewScoreRepo constructs a score repository.
func NewScoreRepo(db *DB) *ScoreRepo { return &ScoreRepo{db: db} }

const scoreColumns = `id, name, points, level, sales, achievements, challenges, seq, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScore(row rowScanner) (*model.UserScore, error) {
	var (
		u    model.UserScore
		chal []byte
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Points, &u.Level, &u.Sales, &u.Achievements, &chal, &u.Seq, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if len(chal) > 0 {
		if err := json.Unmarshal(chal, &u.Challenges); err != nil {
			return nil, fmt.Errorf("decode challenges: %w", err)
		}
	}
	if u.Achievements == nil {
		u.Achievements = []string{}
	}
	return &u, nil
}

func encodeChallenges(st model.ChallengeState) ([]byte, error) {
	if st.Active == nil {
		st.Active = []model.WeeklyChallenge{}
	}
	return json.Marshal(st)
}

func achievementsArg(a []string) []string {
	if a == nil {
		return []string{}
	}
	return a
}

// Create inserts a new user score row.
func (r *ScoreRepo) Create(ctx context.Context, u *model.UserScore) error {
	chal, err := encodeChallenges(u.Challenges)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO user_scores (id, name, points, level, sales, achievements, challenges)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING seq, created_at, updated_at`
	err = r.db.Pool.QueryRow(ctx, q, u.ID, u.Name, u.Points, u.Level, u.Sales, achievementsArg(u.Achievements), chal).
		Scan(&u.Seq, &u.CreatedAt, &u.UpdatedAt)
	switch {
	case isUniqueViolation(err):
		return errs.ErrAlreadyExists
	case isCheckViolation(err):
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	return err
}

// Get selects a user score by id.
func (r *ScoreRepo) Get(ctx context.Context, id uuid.UUID) (*model.UserScore, error) {
	const q = `SELECT ` + scoreColumns + ` FROM user_scores WHERE id=$1`
	u, err := scanScore(r.db.Pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	return u, err
}

// Update locks the row, applies fn and writes the result in one transaction.
func (r *ScoreRepo) Update(ctx context.Context, id uuid.UUID, fn repository.MutateFunc) (out *model.UserScore, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			out, err = nil, e
		}
	}()

	const sel = `SELECT ` + scoreColumns + ` FROM user_scores WHERE id=$1 FOR UPDATE`
	u, err := scanScore(tx.QueryRow(ctx, sel, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	events, err := fn(u)
	if err != nil {
		return nil, err
	}

	chal, err := encodeChallenges(u.Challenges)
	if err != nil {
		return nil, err
	}
	const upd = `
UPDATE user_scores
SET name=$2, points=$3, level=$4, sales=$5, achievements=$6, challenges=$7, updated_at=now()
WHERE id=$1
RETURNING updated_at`
	var updatedAt time.Time
	err = tx.QueryRow(ctx, upd, id, u.Name, u.Points, u.Level, u.Sales, achievementsArg(u.Achievements), chal).Scan(&updatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
		}
		return nil, err
	}
	const ins = `INSERT INTO point_events (user_id, delta, reason, created_at) VALUES ($1, $2, $3, $4)`
	for _, ev := range events {
		at := ev.At
		if at.IsZero() {
			at = updatedAt
		}
		if _, err = tx.Exec(ctx, ins, id, ev.Delta, ev.Reason, at.UTC()); err != nil {
			return nil, fmt.Errorf("insert point event: %w", err)
		}
	}
	u.ID = id
	u.UpdatedAt = updatedAt
	return u, nil
}

// History returns the newest n point events. An unknown user is ErrNotFound.
func (r *ScoreRepo) History(ctx context.Context, id uuid.UUID, n int) ([]model.PointEvent, error) {
	var exists bool
	if err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM user_scores WHERE id=$1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.ErrNotFound
	}
	if n <= 0 {
		return []model.PointEvent{}, nil
	}
	const q = `SELECT delta, reason, created_at FROM point_events WHERE user_id=$1 ORDER BY id DESC LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, id, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.PointEvent, 0, n)
	for rows.Next() {
		ev := model.PointEvent{UserID: id}
		if err := rows.Scan(&ev.Delta, &ev.Reason, &ev.At); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Top returns the ranking ordered in SQL, same order as ranking.Less.
func (r *ScoreRepo) Top(ctx context.Context, n int) ([]model.UserScore, error) {
	if n <= 0 {
		return []model.UserScore{}, nil
	}
	const q = `SELECT ` + scoreColumns + ` FROM user_scores ORDER BY points DESC, seq ASC, id ASC LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.UserScore, 0, n)
	for rows.Next() {
		u, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// ListIDs returns all ids in arrival order.
func (r *ScoreRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	const q = `SELECT id FROM user_scores ORDER BY seq ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
