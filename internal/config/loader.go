package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. NODEMUX_LOG_LEVEL.
const EnvPrefix = "NODEMUX"

// Load reads configuration from path. With an empty path nodemux.yaml is
// looked up in the working directory and in ~/.config/nodemux; a missing
// file there means defaults. Environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("nodemux")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/nodemux")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("shell", "/bin/sh")
	v.SetDefault("completion", CompletionPrompt)
	v.SetDefault("poll_interval", "1s")
	v.SetDefault("strip_ansi", true)
	v.SetDefault("max_output", "0")
	v.SetDefault("kill_grace", "500ms")
	v.SetDefault("stop_timeout", "5s")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("select", "hosts")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.pretty", false)

	groups := make([]map[string]any, 0, 3)
	for _, g := range DefaultGroups() {
		groups = append(groups, map[string]any{"name": g.Name, "nodes": g.Nodes})
	}
	v.SetDefault("groups", groups)
}
