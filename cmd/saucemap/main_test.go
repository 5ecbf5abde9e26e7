package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		w, h    float64
		wantErr bool
	}{
		{in: "800x600", w: 800, h: 600},
		{in: "1920X1080", w: 1920, h: 1080},
		{in: "800", wantErr: true},
		{in: "0x600", wantErr: true},
		{in: "800x-1", wantErr: true},
		{in: "axb", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			w, h, err := parseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 1.0, cfg.GetZoom())

	p := filepath.Join(t.TempDir(), "map.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"zoom": 2.5}`), 0o644))
	cfg, err = loadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.GetZoom())

	_, err = loadConfig(filepath.Join(t.TempDir(), "map.yaml"))
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := openStore(ctx, filepath.Join(t.TempDir(), "w.db"), filepath.Join("..", "..", "config", "worlds.yaml"))
	require.NoError(t, err)
	defer store.Close()

	meta, err := store.WorldByCourse(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, "Watopia", meta.Name)

	_, err = openStore(ctx, filepath.Join(t.TempDir(), "w.db"), "missing.yaml")
	assert.Error(t, err)
}

func TestEnvOr(t *testing.T) {
	t.Setenv("SAUCEMAP_TEST_KEY", "set")
	assert.Equal(t, "set", envOr("SAUCEMAP_TEST_KEY", "def"))
	assert.Equal(t, "def", envOr("SAUCEMAP_TEST_MISSING", "def"))
}
