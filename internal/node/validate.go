package node

import (
	"fmt"
	"regexp"
	"strings"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

const maxNameLen = 64

// ValidateName checks a node name. The name becomes the node's prompt
// ("<name># ") and console lines are routed by that prompt, so it must not
// contain the prompt's own characters or anything a shell would quote.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("node name cannot be empty")
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("node name too long (max %d chars)", maxNameLen)
	}
	if strings.ContainsAny(name, "# \t") {
		return fmt.Errorf("node name %q cannot contain '#' or whitespace, it is part of the prompt", name)
	}
	if !validName.MatchString(name) {
		return fmt.Errorf("node name %q must start with alphanumeric and contain only letters, numbers, dots, dashes, or underscores", name)
	}
	return nil
}
