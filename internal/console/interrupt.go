package console

import (
	"errors"

	"github.com/schovi/nodemux/internal/session"
)

// InterruptObserver is told about every interrupt delivered.
type InterruptObserver interface {
	ObserveInterrupt(node string)
}

// Interrupter cancels whatever a session is running.
type Interrupter struct {
	Observer InterruptObserver
}

func (i *Interrupter) Interrupt(s *session.Session) error {
	if err := s.SendInt(); err != nil {
		return err
	}
	if i.Observer != nil {
		i.Observer.ObserveInterrupt(s.ID())
	}
	return nil
}

// InterruptAll interrupts every live session in sessions. Dead sessions
// are skipped; other failures are joined.
func (i *Interrupter) InterruptAll(sessions []*session.Session) error {
	var errs []error
	for _, s := range sessions {
		if s.Dead() {
			continue
		}
		if err := i.Interrupt(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
