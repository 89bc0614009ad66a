// Package catalog loads weekly challenge and milestone definitions.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/and161185/scorekeeper/internal/errs"
	"github.com/and161185/scorekeeper/internal/model"
)

//go:embed default.yaml
var defaultYAML []byte

// Challenge is a weekly challenge definition.
type Challenge struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Points int64  `yaml:"points" json:"points"`
	Badge  string `yaml:"badge" json:"badge,omitempty"`
}

// Milestone is an achievement granted once points reach a threshold.
type Milestone struct {
	Name   string `yaml:"name" json:"name"`
	Points int64  `yaml:"points" json:"points"`
}

// Catalog holds the current challenge and milestone definitions.
type Catalog struct {
	Challenges []Challenge `yaml:"challenges" json:"challenges"`
	Milestones []Milestone `yaml:"milestones" json:"milestones"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultYAML)
}

// Load reads a catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML catalog.
func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks ids are unique and non-empty and points are non-negative.
func (c *Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c.Challenges))
	for i, ch := range c.Challenges {
		if strings.TrimSpace(ch.ID) == "" {
			return fmt.Errorf("%w: challenge[%d] empty id", errs.ErrValidation, i)
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("%w: duplicate challenge id %q", errs.ErrValidation, ch.ID)
		}
		seen[ch.ID] = struct{}{}
		if ch.Points < 0 {
			return fmt.Errorf("%w: challenge %q negative points", errs.ErrValidation, ch.ID)
		}
	}
	for i, m := range c.Milestones {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("%w: milestone[%d] empty name", errs.ErrValidation, i)
		}
		if m.Points < 0 {
			return fmt.Errorf("%w: milestone %q negative points", errs.ErrValidation, m.Name)
		}
	}
	return nil
}

// Assign returns a fresh, uncompleted challenge state for mode.
// Single mode takes the first challenge only.
func (c *Catalog) Assign(mode model.ChallengeMode) model.ChallengeState {
	st := model.ChallengeState{Mode: mode, Active: []model.WeeklyChallenge{}}
	defs := c.Challenges
	if mode == model.ChallengeModeSingle && len(defs) > 1 {
		defs = defs[:1]
	}
	for _, d := range defs {
		name := d.Name
		if name == "" {
			name = d.ID
		}
		st.Active = append(st.Active, model.WeeklyChallenge{
			ID:     d.ID,
			Name:   name,
			Points: d.Points,
			Badge:  d.Badge,
		})
	}
	return st
}

// Reached returns milestone names whose threshold is <= points.
func (c *Catalog) Reached(points int64) []string {
	var out []string
	for _, m := range c.Milestones {
		if points >= m.Points {
			out = append(out, m.Name)
		}
	}
	return out
}
