package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.CurrentProfile)
	profile, err := cfg.GetProfile("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", profile.IngestURL)
}

func TestSaveProfile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.SaveProfile("staging", &Profile{
		IngestURL:        "https://ingest.staging.example.com",
		SubscriptionsURL: "https://subscriptions.staging.example.com",
		APIKey:           "rk_staging",
	}))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", loaded.CurrentProfile)

	profile, err := loaded.GetProfile("staging")
	require.NoError(t, err)
	assert.Equal(t, "rk_staging", profile.APIKey)

	_, err = loaded.GetProfile("missing")
	assert.Error(t, err)
}
