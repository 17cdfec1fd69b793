package config

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"
)

// ParseSize parses a human size such as "512", "64KB" or "1.5MiB". Units
// are binary: 1KB is 1024 bytes.
func ParseSize(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %w", err)
	}
	return int(n), nil
}
