package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Warzone2100/warzone2100-sub038/pkg/engine"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, engine.DefaultBudget, c.Engine.Budget)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, time.Second/60, c.TickInterval())
}

func TestParse(t *testing.T) {
	c, err := Parse(`
[engine]
budget = 500
tps = 20

[log]
level = "debug"
format = "json"

[scripts]
dir = "ai"
encoding = "shift_jis"

[world]
players = 8
seed = 99

[metrics]
addr = ":9100"

[run]
headless = true
timeout = "30s"
`)
	require.NoError(t, err)
	assert.Equal(t, 500, c.Engine.Budget)
	assert.Equal(t, 20, c.Engine.TPS)
	// unset keys keep their defaults
	assert.Equal(t, Default().Engine.MaxStack, c.Engine.MaxStack)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, Scripts{Dir: "ai", Encoding: "shift_jis"}, c.Scripts)
	assert.Equal(t, World{Players: 8, Seed: 99}, c.World)
	assert.Equal(t, ":9100", c.Metrics.Addr)
	assert.True(t, c.Run.Headless)
	assert.Equal(t, 30*time.Second, c.Run.Timeout)
	assert.Equal(t, 50*time.Millisecond, c.TickInterval())
}

func TestTickInterval_MaxTPS(t *testing.T) {
	c := Default()
	c.Engine.TPS = MaxTPS
	require.NoError(t, c.Validate())
	assert.Equal(t, time.Millisecond, c.TickInterval())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"syntax", "[engine"},
		{"unknown key", "[engine]\nspeed = 3"},
		{"zero budget", "[engine]\nbudget = 0"},
		{"negative tps", "[engine]\ntps = -1"},
		{"tps too high", "[engine]\ntps = 2000000000"},
		{"bad level", "[log]\nlevel = \"loud\""},
		{"bad format", "[log]\nformat = \"xml\""},
		{"no players", "[world]\nplayers = 0"},
		{"wrong type", "[engine]\nbudget = \"many\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.doc)
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nbudget = 7\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, c.Engine.Budget)
	assert.Equal(t, path, c.Path)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	c, err = LoadOptional(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)

	require.NoError(t, os.WriteFile(path, []byte("[engine]\nbudget = -7\n"), 0o644))
	_, err = LoadOptional(path)
	assert.Error(t, err)
}
