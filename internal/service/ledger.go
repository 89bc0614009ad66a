// Package service contains the score ledger: point awards, levels,
// achievements, weekly challenges and the ranking view.
package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/and161185/scorekeeper/internal/catalog"
	"github.com/and161185/scorekeeper/internal/convert"
	"github.com/and161185/scorekeeper/internal/errs"
	"github.com/and161185/scorekeeper/internal/level"
	"github.com/and161185/scorekeeper/internal/metrics"
	"github.com/and161185/scorekeeper/internal/model"
	"github.com/and161185/scorekeeper/internal/notify"
	"github.com/and161185/scorekeeper/internal/ranking"
	"github.com/and161185/scorekeeper/internal/repository"
)

// DefaultChallengeBonus is awarded when neither the request nor the catalog
// specify points for a completed challenge.
const DefaultChallengeBonus int64 = 100

const maxNameLen = 100

// DefaultHistoryLimit is the number of recent point events History returns by default.
const DefaultHistoryLimit = 5

const maxHistoryLimit = 100

// History reasons.
const (
	ReasonAward     = "award"
	ReasonSale      = "sale"
	ReasonActivity  = "activity"
	ReasonChallenge = "challenge: "
)

var tracer = otel.Tracer("github.com/and161185/scorekeeper/internal/service")

// Ledger defines score mutations and the derived ranking view.
type Ledger interface {
	// Register creates a user at points=0, level=1 with the current challenges.
	Register(ctx context.Context, name string) (*model.UserScore, error)
	// Get returns a user snapshot.
	Get(ctx context.Context, id uuid.UUID) (*model.UserScore, error)
	// AwardPoints adds a positive delta and recomputes the level.
	AwardPoints(ctx context.Context, id uuid.UUID, delta int64) (*model.UserScore, error)
	// RecordSale increments sales and grants the configured points per sale.
	RecordSale(ctx context.Context, id uuid.UUID, count int64) (*model.UserScore, error)
	// ApplyActivity adds points and sales in one atomic mutation.
	ApplyActivity(ctx context.Context, id uuid.UUID, points, sales int64) (*model.UserScore, error)
	// AddAchievementBadge adds a badge; a badge already present is not duplicated.
	AddAchievementBadge(ctx context.Context, id uuid.UUID, badge string) (*model.UserScore, error)
	// CompleteWeeklyChallenge awards the challenge bonus and marks it completed.
	CompleteWeeklyChallenge(ctx context.Context, id uuid.UUID, req model.CompleteChallenge) (*model.UserScore, error)
	// ResetChallenges replaces the user's challenges with a fresh catalog assignment.
	ResetChallenges(ctx context.Context, id uuid.UUID) error
	// ListUserIDs returns every user id in arrival order.
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
	// TopN returns up to n ranking entries, recomputed on every call.
	TopN(ctx context.Context, n int) ([]model.RankEntry, error)
	// History returns the point total with the most recent point events.
	History(ctx context.Context, id uuid.UUID, recent int) (*model.PointsHistory, error)
}

// Options configures a ledger.
type Options struct {
	Rule       level.Rule
	Catalog    *catalog.Catalog
	Mode       model.ChallengeMode
	SalePoints int64
	Notifier   notify.Notifier
	Metrics    *metrics.Metrics
	Log        *zap.Logger
}

type LedgerImpl struct {
	repo       repository.ScoreRepository
	rule       level.Rule
	cat        *catalog.Catalog
	mode       model.ChallengeMode
	salePoints int64
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	log        *zap.Logger
	now        func() time.Time
}

var _ Ledger = (*LedgerImpl)(nil)

// NewLedger constructs a ledger over repo. Missing options fall back to
// the default rule, an empty catalog, single mode and a no-op notifier.
func NewLedger(repo repository.ScoreRepository, opts Options) *LedgerImpl {
	l := &LedgerImpl{
		repo:       repo,
		rule:       opts.Rule,
		cat:        opts.Catalog,
		mode:       opts.Mode,
		salePoints: opts.SalePoints,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		log:        opts.Log,
		now:        time.Now,
	}
	if l.cat == nil {
		l.cat = &catalog.Catalog{}
	}
	if !l.mode.Valid() {
		l.mode = model.ChallengeModeSingle
	}
	if l.notifier == nil {
		l.notifier = notify.Nop{}
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	return l
}

// Rule returns the leveling rule in use.
func (l *LedgerImpl) Rule() level.Rule { return l.rule }

// Catalog returns the challenge catalog in use.
func (l *LedgerImpl) Catalog() *catalog.Catalog { return l.cat }

// normalize restores derived fields after any edit. Every write goes through it.
func (l *LedgerImpl) normalize(u *model.UserScore) error {
	if u.Points < 0 {
		return fmt.Errorf("%w: points would become negative (%d)", errs.ErrValidation, u.Points)
	}
	if u.Sales < 0 {
		return fmt.Errorf("%w: sales would become negative (%d)", errs.ErrValidation, u.Sales)
	}
	seen := make(map[string]struct{}, len(u.Achievements))
	dedup := u.Achievements[:0:0]
	for _, a := range u.Achievements {
		if _, ok := seen[a]; ok || a == "" {
			continue
		}
		seen[a] = struct{}{}
		dedup = append(dedup, a)
	}
	u.Achievements = dedup
	for _, m := range l.cat.Reached(u.Points) {
		u.AddAchievement(m)
	}
	u.Level = l.rule.Level(u.Points)
	return nil
}

func (l *LedgerImpl) startSpan(ctx context.Context, op string, id uuid.UUID) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attribute.String("user.id", id.String())))
}

func (l *LedgerImpl) finish(span trace.Span, op string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	if l.metrics != nil {
		l.metrics.LedgerOps.WithLabelValues(op, metrics.Outcome(err)).Inc()
	}
}

// journal collects the point events of one mutation.
type journal struct {
	at     time.Time
	events []model.PointEvent
}

// credit adds delta points to u and records it under reason.
func (j *journal) credit(u *model.UserScore, delta int64, reason string) error {
	if delta == 0 {
		return nil
	}
	if u.Points > 0 && delta > math.MaxInt64-u.Points {
		return fmt.Errorf("%w: points overflow", errs.ErrValidation)
	}
	u.Points += delta
	j.events = append(j.events, model.PointEvent{Delta: delta, Reason: reason, At: j.at})
	return nil
}

func addSales(u *model.UserScore, n int64) error {
	if u.Sales > 0 && n > math.MaxInt64-u.Sales {
		return fmt.Errorf("%w: sales overflow", errs.ErrValidation)
	}
	u.Sales += n
	return nil
}

// mutate runs fn under the per-user lock, normalises the result and
// publishes the change when publish reports true. Points credited through
// the journal are stored with the record.
func (l *LedgerImpl) mutate(ctx context.Context, op string, id uuid.UUID, fn func(u *model.UserScore, j *journal) (publish bool, err error)) (out *model.UserScore, err error) {
	ctx, span := l.startSpan(ctx, op, id)
	defer func() { l.finish(span, op, err) }()

	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	var publish bool
	out, err = l.repo.Update(ctx, id, func(u *model.UserScore) ([]model.PointEvent, error) {
		j := &journal{at: l.now().UTC()}
		p, ferr := fn(u, j)
		if ferr != nil {
			return nil, ferr
		}
		publish = p
		return j.events, l.normalize(u)
	})
	if err != nil {
		return nil, err
	}
	if publish {
		l.publishChange(ctx, out)
	}
	return out, nil
}

// publishChange pushes the changed user and the recomputed top ranking.
// Delivery failures are logged only.
func (l *LedgerImpl) publishChange(ctx context.Context, u *model.UserScore) {
	ctx = context.WithoutCancel(ctx)
	if err := l.notifier.Publish(ctx, notify.EventUserUpdate, convert.ToUserView(*u, nil)); err != nil {
		l.log.Warn("publish user update", zap.String("user_id", u.ID.String()), zap.Error(err))
	}
	top, err := l.TopN(ctx, ranking.DefaultLimit)
	if err != nil {
		l.log.Warn("recompute ranking", zap.Error(err))
		return
	}
	if err := l.notifier.Publish(ctx, notify.EventRankingUpdate, top); err != nil {
		l.log.Warn("publish ranking update", zap.Error(err))
	}
}

// Register validates the name and creates a user record.
func (l *LedgerImpl) Register(ctx context.Context, name string) (out *model.UserScore, err error) {
	ctx, span := tracer.Start(ctx, "ledger.register")
	defer func() { l.finish(span, "register", err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", errs.ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return nil, fmt.Errorf("%w: name longer than %d characters", errs.ErrValidation, maxNameLen)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	u := &model.UserScore{
		ID:           id,
		Name:         name,
		Achievements: []string{},
		Challenges:   l.cat.Assign(l.mode),
	}
	if err := l.normalize(u); err != nil {
		return nil, err
	}
	if err := l.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	l.log.Info("user registered", zap.String("user_id", id.String()))
	l.publishChange(ctx, u)
	return u, nil
}

// Get returns the stored user.
func (l *LedgerImpl) Get(ctx context.Context, id uuid.UUID) (*model.UserScore, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	return l.repo.Get(ctx, id)
}

// AwardPoints adds delta (> 0) to the user's points.
func (l *LedgerImpl) AwardPoints(ctx context.Context, id uuid.UUID, delta int64) (*model.UserScore, error) {
	if delta <= 0 {
		return nil, fmt.Errorf("%w: point delta must be positive, got %d", errs.ErrValidation, delta)
	}
	return l.mutate(ctx, "award_points", id, func(u *model.UserScore, j *journal) (bool, error) {
		return true, j.credit(u, delta, ReasonAward)
	})
}

// RecordSale adds count (> 0) sales and count*salePoints points.
func (l *LedgerImpl) RecordSale(ctx context.Context, id uuid.UUID, count int64) (*model.UserScore, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: sale count must be positive, got %d", errs.ErrValidation, count)
	}
	if l.salePoints > 0 && count > math.MaxInt64/l.salePoints {
		return nil, fmt.Errorf("%w: sale count %d too large", errs.ErrValidation, count)
	}
	return l.mutate(ctx, "record_sale", id, func(u *model.UserScore, j *journal) (bool, error) {
		if err := addSales(u, count); err != nil {
			return false, err
		}
		return true, j.credit(u, count*l.salePoints, ReasonSale)
	})
}

// ApplyActivity adds points and sales together. Sales here are counted only;
// they do not grant sale points, the caller states the points explicitly.
func (l *LedgerImpl) ApplyActivity(ctx context.Context, id uuid.UUID, points, sales int64) (*model.UserScore, error) {
	if points < 0 || sales < 0 {
		return nil, fmt.Errorf("%w: points and sales must not be negative", errs.ErrValidation)
	}
	if points == 0 && sales == 0 {
		return nil, fmt.Errorf("%w: nothing to apply", errs.ErrValidation)
	}
	return l.mutate(ctx, "apply_activity", id, func(u *model.UserScore, j *journal) (bool, error) {
		if err := addSales(u, sales); err != nil {
			return false, err
		}
		return true, j.credit(u, points, ReasonActivity)
	})
}

// AddAchievementBadge adds badge unless already earned.
func (l *LedgerImpl) AddAchievementBadge(ctx context.Context, id uuid.UUID, badge string) (*model.UserScore, error) {
	badge = strings.TrimSpace(badge)
	if badge == "" {
		return nil, fmt.Errorf("%w: empty badge", errs.ErrValidation)
	}
	return l.mutate(ctx, "add_badge", id, func(u *model.UserScore, _ *journal) (bool, error) {
		return u.AddAchievement(badge), nil
	})
}

// CompleteWeeklyChallenge completes one challenge. A second completion of the
// same challenge fails with ErrAlreadyCompleted and changes nothing.
func (l *LedgerImpl) CompleteWeeklyChallenge(ctx context.Context, id uuid.UUID, req model.CompleteChallenge) (*model.UserScore, error) {
	if req.Points < 0 {
		return nil, fmt.Errorf("%w: challenge points must not be negative", errs.ErrValidation)
	}
	req.ChallengeID = strings.TrimSpace(req.ChallengeID)
	return l.mutate(ctx, "complete_challenge", id, func(u *model.UserScore, j *journal) (bool, error) {
		if u.Challenges.Mode == model.ChallengeModeMulti && req.ChallengeID == "" {
			return false, fmt.Errorf("%w: challenge id required", errs.ErrValidation)
		}
		idx := u.Challenges.Find(req.ChallengeID)
		if idx < 0 {
			return false, fmt.Errorf("%w: challenge %q not active", errs.ErrNotFound, req.ChallengeID)
		}
		ch := &u.Challenges.Active[idx]
		if ch.Completed {
			return false, fmt.Errorf("%w: challenge %q", errs.ErrAlreadyCompleted, ch.ID)
		}

		bonus := req.Points
		if bonus <= 0 {
			bonus = ch.Points
		}
		if bonus <= 0 {
			bonus = DefaultChallengeBonus
		}
		if err := j.credit(u, bonus, ReasonChallenge+ch.Name); err != nil {
			return false, err
		}
		now := j.at
		ch.Completed = true
		ch.CompletedAt = &now
		u.AddAchievement("Challenge: " + ch.Name)

		badge := strings.TrimSpace(req.Badge)
		if badge == "" {
			badge = ch.Badge
		}
		u.AddAchievement(badge)
		return true, nil
	})
}

// ResetChallenges assigns fresh challenges. It does not publish; the reset
// job announces the new round once for all users.
func (l *LedgerImpl) ResetChallenges(ctx context.Context, id uuid.UUID) error {
	_, err := l.mutate(ctx, "reset_challenges", id, func(u *model.UserScore, _ *journal) (bool, error) {
		u.Challenges = l.cat.Assign(l.mode)
		return false, nil
	})
	return err
}

// ListUserIDs returns all user ids.
func (l *LedgerImpl) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	return l.repo.ListIDs(ctx)
}

// TopN reads the current ranking from storage; nothing is cached.
func (l *LedgerImpl) TopN(ctx context.Context, n int) ([]model.RankEntry, error) {
	top, err := l.repo.Top(ctx, ranking.ClampLimit(n))
	if err != nil {
		return nil, err
	}
	return convert.ToRanking(top), nil
}

// History returns the user's total with up to recent point events, newest
// first. recent <= 0 selects DefaultHistoryLimit.
func (l *LedgerImpl) History(ctx context.Context, id uuid.UUID, recent int) (*model.PointsHistory, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	if recent <= 0 {
		recent = DefaultHistoryLimit
	}
	recent = min(recent, maxHistoryLimit)
	u, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := l.repo.History(ctx, id, recent)
	if err != nil {
		return nil, err
	}
	return &model.PointsHistory{UserID: u.ID, Points: u.Points, Level: u.Level, Recent: events}, nil
}

// CurrentChallenges returns the challenge set a reset assigns right now.
func (l *LedgerImpl) CurrentChallenges() model.ChallengeState {
	return l.cat.Assign(l.mode)
}
