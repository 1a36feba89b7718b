package app_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/bcnelson/ipsync/internal/app"
	"github.com/bcnelson/ipsync/internal/config"
	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/caarlos0/env/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pairingsYAML = `
pairings:
  - name: office
    sources:
      - provider: static
        addresses: ["192.0.2.0/30", "192.0.2.10"]
      - provider: static
        addresses: ["198.51.100.7"]
    target:
      provider: file
      collection: office
  - name: mirror
    sources:
      - provider: file
        collection: office
    target:
      provider: sqlstore
      collection: office-copy
`

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	pairingsPath := filepath.Join(dir, "ipsync.yaml")
	require.NoError(t, os.WriteFile(pairingsPath, []byte(pairingsYAML), 0o600))

	cfg, err := config.LoadFrom(env.Options{Environment: map[string]string{
		"SYNC_CONFIG":              pairingsPath,
		"SYNC_FILE_PATH":           filepath.Join(dir, "addresses.json"),
		"SYNC_PAIRING_CONCURRENCY": "1",
		"DB_DSN":                   filepath.Join(dir, "ipsync.db"),
	}})
	require.NoError(t, err)
	return cfg
}

func TestNew_WiresProviders(t *testing.T) {
	a, err := app.New(loadConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, []string{"file", "sqlstore", "static"}, a.Registry.Names())

	pairings := a.Sync.Pairings()
	require.Len(t, pairings, 2)
	assert.Equal(t, "office/0", pairings[0].Sources[0].Collection)
	assert.Equal(t, "office/1", pairings[0].Sources[1].Collection)
}

func TestNew_EndToEnd(t *testing.T) {
	cfg := loadConfig(t)
	a, err := app.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	report, err := a.Sync.Run(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, report.HasFailures(), "%+v", report.PairingFailures)

	data, err := os.ReadFile(cfg.Sync.FilePath)
	require.NoError(t, err)
	var doc map[string][]string
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []string{"192.0.2.1", "192.0.2.2", "192.0.2.10", "198.51.100.7"}, doc["office"])

	// Pairings run in order with a concurrency of one, so the mirror sees the file
	// already written by the first pairing.
	set, err := a.Storage.GetAddressSetByName(context.Background(), "office-copy")
	require.NoError(t, err)
	members, err := a.Storage.ListMembers(context.Background(), set.ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, members, 4)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Database.DSN = ""

	_, err := app.New(cfg, zerolog.Nop())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
