package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nodemux.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "/bin/sh", cfg.Shell)
	assert.Equal(t, CompletionPrompt, cfg.Completion)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.KillGrace)
	assert.True(t, cfg.StripANSI)
	assert.Equal(t, DefaultGroups(), cfg.Groups)
	assert.Equal(t, "hosts", cfg.Select)
	require.NoError(t, cfg.Validate())

	size, err := cfg.MaxOutputBytes()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
shell: /bin/bash --norc
completion: sentinel
poll_interval: 250ms
max_output: 64KB
select: edge
log:
  level: debug
groups:
  - name: edge
    nodes: [e1, e2]
  - name: core
    nodes: [k1]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/bin/bash --norc", cfg.Shell)
	assert.Equal(t, CompletionSentinel, cfg.Completion)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []GroupConfig{
		{Name: "edge", Nodes: []string{"e1", "e2"}},
		{Name: "core", Nodes: []string{"k1"}},
	}, cfg.Groups)
	// Unset keys keep their defaults.
	assert.Equal(t, 500*time.Millisecond, cfg.KillGrace)

	size, err := cfg.MaxOutputBytes()
	require.NoError(t, err)
	assert.Equal(t, 64*1024, size)

	g, ok := cfg.Group("core")
	require.True(t, ok)
	assert.Equal(t, []string{"k1"}, g.Nodes)
	_, ok = cfg.Group("hosts")
	assert.False(t, ok)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "completion: prompt\n")
	t.Setenv("NODEMUX_COMPLETION", "sentinel")
	t.Setenv("NODEMUX_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, CompletionSentinel, cfg.Completion)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultGroups(), cfg.Groups)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "completion: guess\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completion")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty shell", func(c *Config) { c.Shell = "" }, "shell is required"},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, "poll_interval"},
		{"negative grace", func(c *Config) { c.KillGrace = -time.Second }, "kill_grace"},
		{"bad size", func(c *Config) { c.MaxOutput = "lots" }, "max_output"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"no groups", func(c *Config) { c.Groups = nil }, "at least one group"},
		{"unnamed group", func(c *Config) {
			c.Groups = append(c.Groups, GroupConfig{Nodes: []string{"x1"}})
		}, "group name is required"},
		{"duplicate group", func(c *Config) {
			c.Groups = append(c.Groups, GroupConfig{Name: "hosts", Nodes: []string{"x1"}})
		}, `group "hosts" defined twice`},
		{"empty group", func(c *Config) {
			c.Groups = append(c.Groups, GroupConfig{Name: "spare"})
		}, `group "spare" has no nodes`},
		{"duplicate node", func(c *Config) {
			c.Groups = append(c.Groups, GroupConfig{Name: "extra", Nodes: []string{"h1"}})
		}, `node "h1" is in groups "hosts" and "extra"`},
		{"invalid node name", func(c *Config) {
			c.Groups[0].Nodes = append(c.Groups[0].Nodes, "bad name")
		}, `node name "bad name" cannot contain '#' or whitespace`},
		{"node name outside charset", func(c *Config) {
			c.Groups[0].Nodes = append(c.Groups[0].Nodes, "$(id)")
		}, `node name "$(id)" must start with alphanumeric`},
		{"unknown select", func(c *Config) { c.Select = "routers" }, "select"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
