package config

import (
	"time"
)

const (
	CompletionPrompt   = "prompt"
	CompletionSentinel = "sentinel"
)

// Config holds everything a run needs: the node topology and how nodes
// are driven.
type Config struct {
	// Shell is the command each node runs.
	Shell string `mapstructure:"shell"`
	// Completion selects how a finished command is recognised: prompt
	// (the node's "<id># " prompt ends the output) or sentinel (a unique
	// per-node marker that never appears in displayed output).
	Completion   string        `mapstructure:"completion"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	StripANSI    bool          `mapstructure:"strip_ansi"`
	// MaxOutput caps each node's buffered output, e.g. "10MB". Empty or
	// "0" means unbounded.
	MaxOutput   string        `mapstructure:"max_output"`
	KillGrace   time.Duration `mapstructure:"kill_grace"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
	// Select is the group shown first.
	Select string        `mapstructure:"select"`
	Log    LogConfig     `mapstructure:"log"`
	Groups []GroupConfig `mapstructure:"groups"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Pretty bool   `mapstructure:"pretty"`
}

// GroupConfig is a named set of nodes shown together.
type GroupConfig struct {
	Name  string   `json:"name" mapstructure:"name"`
	Nodes []string `json:"nodes" mapstructure:"nodes"`
}

// DefaultGroups is a tree of depth 2 and fanout 2: four hosts under two
// edge switches and a core switch, plus one controller.
func DefaultGroups() []GroupConfig {
	return []GroupConfig{
		{Name: "hosts", Nodes: []string{"h1", "h2", "h3", "h4"}},
		{Name: "switches", Nodes: []string{"s1", "s2", "s3"}},
		{Name: "controllers", Nodes: []string{"c0"}},
	}
}

// MaxOutputBytes is MaxOutput in bytes.
func (c *Config) MaxOutputBytes() (int, error) {
	if c.MaxOutput == "" {
		return 0, nil
	}
	return ParseSize(c.MaxOutput)
}

// Group returns the group called name.
func (c *Config) Group(name string) (GroupConfig, bool) {
	for _, g := range c.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return GroupConfig{}, false
}
