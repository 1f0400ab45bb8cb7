package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 2*time.Second, cfg.RequestDelayMin)
	assert.Equal(t, 5*time.Second, cfg.RequestDelayMax)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.FetchDetails)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("USE_CACHE", "true")
	t.Setenv("REQUEST_DELAY_MIN_MS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.True(t, cfg.UseCache)
	assert.Equal(t, 2*time.Second, cfg.RequestDelayMin, "unparsable values fall back to the default")
	assert.Contains(t, cfg.DSN(), "host=db")
	assert.Contains(t, cfg.DSN(), "dbname=timeshare_deals")
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name, key, val string
	}{
		{"unknown driver", "DB_DRIVER", "mysql"},
		{"too many retries", "MAX_RETRIES", "50"},
		{"inverted delays", "REQUEST_DELAY_MAX_MS", "100"},
		{"bad log level", "LOG_LEVEL", "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, 0.15, p.Grades.Good)
	assert.Equal(t, 1100.0, p.ClosingCosts)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
grades:
  excellent: 0.08
  good: 0.12
  fair: 0.18
closing_costs: 1500
catalog_year: 2025
`), 0o644))

	p, err = LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 0.08, p.Grades.Excellent)
	assert.Equal(t, 1500.0, p.ClosingCosts)
	assert.Equal(t, 2025, p.CatalogYear)
	assert.Equal(t, 209.0, p.EOYClubDues, "unset keys keep their defaults")
	assert.NotEmpty(t, p.Aliases)
}

func TestLoadPolicyRejectsBadLadder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grades: {excellent: 0.2, good: 0.1, fair: 0.3}\n"), 0o644))

	_, err := LoadPolicy(path)
	assert.Error(t, err)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
