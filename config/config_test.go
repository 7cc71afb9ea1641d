package config

import (
	"os"
	"path/filepath"
	"testing"

	"kuanb/gosm-matcher/hmm"
	"kuanb/gosm-matcher/osm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, hmm.Params{Sigma: 4.07, My: 0, MaxDistance: 35}, cfg.Params())
	assert.Equal(t, osm.DefaultHighways, cfg.Highways)
}

func TestLoadConfig_PartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "matcher.json", `{"sigma": 10, "workers": 4, "normalize_transitions": true}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10.0, cfg.Sigma)
	assert.Equal(t, 4, cfg.Workers)
	assert.True(t, cfg.NormalizeTransitions)
	assert.Equal(t, 35.0, cfg.MaxDistance)
	assert.Equal(t, 3.0, cfg.Beta)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		invalid bool
	}{
		{name: "wrong extension", file: "matcher.yaml", body: `{}`},
		{name: "bad json", file: "matcher.json", body: `{"sigma":`},
		{name: "negative sigma", file: "matcher.json", body: `{"sigma": -1}`, invalid: true},
		{name: "zero radius", file: "matcher.json", body: `{"max_distance": 0}`, invalid: true},
		{name: "negative candidates", file: "matcher.json", body: `{"max_candidates": -2}`, invalid: true},
		{name: "zero beta", file: "matcher.json", body: `{"beta": 0}`, invalid: true},
		{name: "zero workers", file: "matcher.json", body: `{"workers": 0}`, invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			if tt.invalid {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
