// Package model defines domain entities used by services and repositories.
package model

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ChallengeMode selects how weekly challenges are tracked for every user.
type ChallengeMode string

const (
	// ChallengeModeSingle keeps at most one active challenge per user.
	ChallengeModeSingle ChallengeMode = "single"
	// ChallengeModeMulti keeps a list of challenges with independent completion flags.
	ChallengeModeMulti ChallengeMode = "multi"
)

// Valid reports whether m is a known mode.
func (m ChallengeMode) Valid() bool {
	return m == ChallengeModeSingle || m == ChallengeModeMulti
}

// WeeklyChallenge is one assigned challenge and its completion state.
type WeeklyChallenge struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Points      int64      `json:"points"`
	Badge       string     `json:"badge,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ChallengeState is the tagged challenge variant stored on a user.
// In single mode Active holds at most one entry.
type ChallengeState struct {
	Mode   ChallengeMode     `json:"mode"`
	Active []WeeklyChallenge `json:"active"`
}

// Find returns the index of the challenge with the given id, or -1.
// A key matching no id is compared to challenge names, ignoring case.
// In single mode an empty id selects the active challenge.
func (s ChallengeState) Find(id string) int {
	if id == "" {
		if s.Mode == ChallengeModeSingle && len(s.Active) > 0 {
			return 0
		}
		return -1
	}
	for i := range s.Active {
		if s.Active[i].ID == id {
			return i
		}
	}
	for i := range s.Active {
		if strings.EqualFold(s.Active[i].Name, id) {
			return i
		}
	}
	return -1
}

// UserScore is the persisted points/level/achievements record for one user.
type UserScore struct {
	ID           uuid.UUID      // PK
	Name         string         // display name
	Points       int64          // >= 0
	Level        int            // derived from Points, never set directly by callers
	Sales        int64          // >= 0
	Achievements []string       // ordered set, no duplicates
	Challenges   ChallengeState // weekly challenges
	Seq          int64          // arrival order, ranking tiebreak
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Clone returns a deep copy so snapshots never alias stored slices.
func (u UserScore) Clone() UserScore {
	out := u
	out.Achievements = append([]string(nil), u.Achievements...)
	out.Challenges.Active = make([]WeeklyChallenge, len(u.Challenges.Active))
	for i, c := range u.Challenges.Active {
		if c.CompletedAt != nil {
			t := *c.CompletedAt
			c.CompletedAt = &t
		}
		out.Challenges.Active[i] = c
	}
	return out
}

// HasAchievement reports whether badge is already earned.
func (u *UserScore) HasAchievement(badge string) bool {
	for _, a := range u.Achievements {
		if a == badge {
			return true
		}
	}
	return false
}

// AddAchievement appends badge unless present and reports whether it was added.
func (u *UserScore) AddAchievement(badge string) bool {
	if badge == "" || u.HasAchievement(badge) {
		return false
	}
	u.Achievements = append(u.Achievements, badge)
	return true
}

// RankEntry is one row of the ranking view.
type RankEntry struct {
	Rank   int       `json:"rank"`
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Points int64     `json:"points"`
	Level  int       `json:"level"`
	Sales  int64     `json:"sales"`
}

// CompleteChallenge is a request to complete a weekly challenge.
type CompleteChallenge struct {
	ChallengeID string // empty selects the active challenge in single mode
	Points      int64  // overrides the catalog bonus when > 0
	Badge       string // extra badge, falls back to the catalog badge
}

// PointEvent is one entry of a user's points history.
type PointEvent struct {
	UserID uuid.UUID `json:"-"`
	Delta  int64     `json:"delta"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// PointsHistory is the current total with the most recent history entries.
type PointsHistory struct {
	UserID uuid.UUID    `json:"user_id"`
	Points int64        `json:"points"`
	Level  int          `json:"level"`
	Recent []PointEvent `json:"recent"`
}
