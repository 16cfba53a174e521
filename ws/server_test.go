package ws

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/vowsock"
	"github.com/luciancaetano/vowsock/internal/projects"
)

func TestNewConfigLoadsBundles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	devPath := filepath.Join(dir, "dev.js")
	require.NoError(t, os.WriteFile(devPath, []byte("dev()"), 0o644))

	cfg := DefaultConfig()
	cfg.Core.DevelopmentFile = devPath
	cfg.Core.ProductionHash = "prodhash"
	cfg.Metrics.Enabled = true

	sc, err := NewConfig(cfg, projects.NewMemoryStore(), AllOrigins(), nil)
	require.NoError(t, err)

	assert.Equal(t, "dev()", sc.Development.Bundle)
	assert.Len(t, sc.Development.Hash, 64)
	assert.Empty(t, sc.Production.Bundle)
	assert.Equal(t, "prodhash", sc.Production.Hash)
	assert.NotNil(t, sc.Metrics)

	var server vowsock.Server = New(sc)
	assert.NotNil(t, server.Handler())
}

func TestNewConfigErrors(t *testing.T) {
	t.Parallel()

	_, err := NewConfig(DefaultConfig(), nil, nil, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Core.ProductionFile = filepath.Join(t.TempDir(), "missing.js")
	_, err = NewConfig(cfg, projects.NewMemoryStore(), nil, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	cfg = DefaultConfig()
	cfg.SendQueue = 0
	_, err = NewConfig(cfg, projects.NewMemoryStore(), nil, nil)
	assert.Error(t, err)
}

func TestRateLimitPresets(t *testing.T) {
	t.Parallel()

	assert.True(t, DefaultRateLimitConfig().Enabled)
	assert.False(t, NoRateLimit().Enabled)
}
