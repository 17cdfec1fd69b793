package console

import (
	"strings"

	"github.com/schovi/nodemux/internal/session"
)

// Router decides how a line of operator input reaches a session: byte by
// byte into a running command, or as a whole command line.
type Router struct{}

// Route delivers line to s. While s is waiting every byte, terminator
// included, is written through so the running command can read it.
// Otherwise the terminator is dropped, any echoed prompt is cut off and
// the remainder is sent as a command.
func (Router) Route(s *session.Session, line string) error {
	if s.Dead() {
		return session.ErrSessionDead
	}
	if s.Waiting() {
		for i := 0; i < len(line); i++ {
			if err := s.Write(line[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return s.SendCmd(CommandBody(line, s.Prompt()))
}

// CommandBody strips the line terminator and everything up to and
// including the first occurrence of prompt. A line without the prompt is
// returned whole.
func CommandBody(line, prompt string) string {
	line = strings.TrimRight(line, "\r\n")
	if prompt == "" {
		return line
	}
	if pos := strings.Index(line, prompt); pos >= 0 {
		return line[pos+len(prompt):]
	}
	return line
}
