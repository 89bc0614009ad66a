// Package convert maps domain entities to and from their JSON wire views.
package convert

import (
	"fmt"
	"strings"
	"time"

	u "github.com/gofrs/uuid/v5"

	"github.com/and161185/scorekeeper/internal/errs"
	"github.com/and161185/scorekeeper/internal/level"
	"github.com/and161185/scorekeeper/internal/model"
	"github.com/and161185/scorekeeper/internal/ranking"
)

// UserView is the JSON shape of a user score.
type UserView struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Points       int64                `json:"points"`
	Level        int                  `json:"level"`
	Sales        int64                `json:"sales"`
	Achievements []string             `json:"achievements"`
	Challenges   model.ChallengeState `json:"challenges"`
	Progress     *level.Progress      `json:"progress,omitempty"`
	CreatedAt    *time.Time           `json:"created_at,omitempty"`
	UpdatedAt    *time.Time           `json:"updated_at,omitempty"`
}

func ts(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

// ToUserView converts a score to its view. Progress is included when rule is non-nil.
func ToUserView(s model.UserScore, rule *level.Rule) UserView {
	v := UserView{
		ID:           s.ID.String(),
		Name:         s.Name,
		Points:       s.Points,
		Level:        s.Level,
		Sales:        s.Sales,
		Achievements: append([]string{}, s.Achievements...),
		Challenges:   s.Clone().Challenges,
		CreatedAt:    ts(s.CreatedAt),
		UpdatedAt:    ts(s.UpdatedAt),
	}
	if v.Challenges.Active == nil {
		v.Challenges.Active = []model.WeeklyChallenge{}
	}
	if rule != nil {
		p := rule.Progress(s.Points)
		v.Progress = &p
	}
	return v
}

// ToRanking converts ordered scores into rank entries.
func ToRanking(scores []model.UserScore) []model.RankEntry {
	return ranking.Entries(scores)
}

// ParseUserID parses a user id from its string form.
func ParseUserID(s string) (u.UUID, error) {
	id, err := u.FromString(strings.TrimSpace(s))
	if err != nil || id == u.Nil {
		return u.Nil, fmt.Errorf("%w: bad user id %q", errs.ErrValidation, s)
	}
	return id, nil
}
