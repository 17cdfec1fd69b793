package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/schovi/nodemux/internal/node"
)

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Shell == "" {
		errs = append(errs, errors.New("shell is required"))
	}
	switch c.Completion {
	case CompletionPrompt, CompletionSentinel:
	default:
		errs = append(errs, fmt.Errorf("completion must be %q or %q, got %q",
			CompletionPrompt, CompletionSentinel, c.Completion))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.KillGrace < 0 {
		errs = append(errs, errors.New("kill_grace must not be negative"))
	}
	if c.StopTimeout < 0 {
		errs = append(errs, errors.New("stop_timeout must not be negative"))
	}
	if _, err := c.MaxOutputBytes(); err != nil {
		errs = append(errs, fmt.Errorf("max_output: %w", err))
	}
	if c.Log.Level != "" {
		if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
			errs = append(errs, fmt.Errorf("log.level: %w", err))
		}
	}

	errs = append(errs, c.validateGroups()...)
	return errors.Join(errs...)
}

func (c *Config) validateGroups() []error {
	if len(c.Groups) == 0 {
		return []error{errors.New("at least one group is required")}
	}

	var errs []error
	groups := make(map[string]bool)
	nodes := make(map[string]string)
	for _, g := range c.Groups {
		if g.Name == "" {
			errs = append(errs, errors.New("group name is required"))
			continue
		}
		if groups[g.Name] {
			errs = append(errs, fmt.Errorf("group %q defined twice", g.Name))
		}
		groups[g.Name] = true
		if len(g.Nodes) == 0 {
			errs = append(errs, fmt.Errorf("group %q has no nodes", g.Name))
		}
		for _, n := range g.Nodes {
			if err := node.ValidateName(n); err != nil {
				errs = append(errs, fmt.Errorf("group %q: %w", g.Name, err))
				continue
			}
			if other, dup := nodes[n]; dup {
				errs = append(errs, fmt.Errorf("node %q is in groups %q and %q", n, other, g.Name))
			}
			nodes[n] = g.Name
		}
	}

	if c.Select != "" && !groups[c.Select] {
		errs = append(errs, fmt.Errorf("select: unknown group %q", c.Select))
	}
	return errs
}
