package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, StorePostgres, cfg.Store)
	require.Equal(t, int64(1000), cfg.LevelUnit)
	require.Equal(t, "single", cfg.ChallengeMode)
	require.Equal(t, 168*time.Hour, cfg.ResetInterval)
	require.True(t, cfg.RedisForward)
}

func TestLoad_EnvThenFlags(t *testing.T) {
	t.Setenv("SK_STORE", "memory")
	t.Setenv("SK_LEVEL_UNIT", "500")
	t.Setenv("SK_CHALLENGE_MODE", "multi")

	cfg, err := Load([]string{"-level-unit", "50", "-addr", ":9999"})
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.Store)
	require.Equal(t, int64(50), cfg.LevelUnit)
	require.Equal(t, "multi", cfg.ChallengeMode)
	require.Equal(t, ":9999", cfg.HTTPAddr)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("SK_LEVEL_UNIT", "lots")
	_, err := Load(nil)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load([]string{"-store", "memory"})
	require.NoError(t, err)

	bad := cfg
	bad.LevelUnit = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Store = "sqlite"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Store = StorePostgres
	bad.DSN = ""
	require.Error(t, bad.Validate())

	bad = cfg
	bad.ChallengeMode = "weekly"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.SalePoints = -1
	bad.ResetConcurrency = 0
	err = bad.Validate()
	require.ErrorContains(t, err, "sale points")
	require.ErrorContains(t, err, "reset concurrency")
}
