package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/scorekeeper/internal/errs"
	"github.com/and161185/scorekeeper/internal/model"
)

func TestDefault_Valid(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NotEmpty(t, c.Challenges)
	require.Equal(t, "close-5-sales", c.Challenges[0].ID)
	require.Equal(t, int64(100), c.Challenges[0].Points)
}

func TestLoad_FileOverride(t *testing.T) {
	p := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(p, []byte("challenges:\n  - id: x\n    points: 5\n"), 0o600))

	c, err := Load(p)
	require.NoError(t, err)
	require.Len(t, c.Challenges, 1)
	require.Empty(t, c.Milestones)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParse_Validation(t *testing.T) {
	_, err := Parse([]byte("challenges:\n  - id: a\n  - id: a\n"))
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = Parse([]byte("challenges:\n  - name: no id\n"))
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = Parse([]byte("challenges:\n  - id: a\n    points: -1\n"))
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = Parse([]byte("milestones:\n  - name: m\n    points: -1\n"))
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = Parse([]byte("challenges: [oops"))
	require.Error(t, err)
}

func TestAssign_Modes(t *testing.T) {
	c, err := Parse([]byte("challenges:\n  - id: a\n    points: 1\n  - id: b\n    name: Bee\n"))
	require.NoError(t, err)

	single := c.Assign(model.ChallengeModeSingle)
	require.Equal(t, model.ChallengeModeSingle, single.Mode)
	require.Len(t, single.Active, 1)
	require.Equal(t, "a", single.Active[0].Name)

	multi := c.Assign(model.ChallengeModeMulti)
	require.Len(t, multi.Active, 2)
	require.Equal(t, "Bee", multi.Active[1].Name)
	for _, ch := range multi.Active {
		require.False(t, ch.Completed)
	}
}

func TestReached(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.Empty(t, c.Reached(49))
	require.Equal(t, []string{"First Steps"}, c.Reached(50))
	require.Equal(t, []string{"First Steps", "CRM Champion"}, c.Reached(900))
}
