// Package notify broadcasts ledger change events to connected observers.
package notify

import (
	"context"
	"errors"
	"time"
)

// Event names published after ledger mutations.
const (
	EventUserUpdate    = "userUpdate"
	EventRankingUpdate = "rankingUpdate"
	EventNewChallenges = "newChallenges"
)

// Notifier is a fire-and-forget broadcast channel.
type Notifier interface {
	Publish(ctx context.Context, event string, payload any) error
}

// Message is the envelope delivered to observers.
type Message struct {
	Event   string    `json:"event"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Nop discards every event.
type Nop struct{}

// Publish implements Notifier.
func (Nop) Publish(context.Context, string, any) error { return nil }

// Multi publishes to every notifier and joins their errors.
type Multi []Notifier

// Publish implements Notifier.
func (m Multi) Publish(ctx context.Context, event string, payload any) error {
	var all []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Publish(ctx, event, payload); err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}
