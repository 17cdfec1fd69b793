package session

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/schovi/nodemux/internal/reactor"
)

// Group is a named, ordered set of sessions shown together.
type Group struct {
	Name     string
	Sessions []*Session
}

// Dispatcher is the readiness dispatcher sessions are attached to.
type Dispatcher interface {
	Register(fd int, name string, cb reactor.Callback)
	Pump() error
}

// Registry owns every session of a run, keyed by node id. Insertion order
// is display order. Sessions are fixed for the lifetime of the registry.
type Registry struct {
	groups []*Group
	byID   map[string]*Session
	order  []*Session
	log    zerolog.Logger
}

func NewRegistry(groups []Group, log zerolog.Logger) (*Registry, error) {
	r := &Registry{
		byID: make(map[string]*Session),
		log:  log,
	}
	for _, g := range groups {
		group := &Group{Name: g.Name}
		for _, s := range g.Sessions {
			if _, exists := r.byID[s.ID()]; exists {
				return nil, fmt.Errorf("session %q registered twice", s.ID())
			}
			r.byID[s.ID()] = s
			r.order = append(r.order, s)
			group.Sessions = append(group.Sessions, s)
		}
		r.groups = append(r.groups, group)
	}
	return r, nil
}

func (r *Registry) Get(id string) (*Session, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// All returns every session in display order.
func (r *Registry) All() []*Session {
	return append([]*Session{}, r.order...)
}

func (r *Registry) Groups() []*Group {
	return r.groups
}

func (r *Registry) Group(name string) (*Group, bool) {
	for _, g := range r.groups {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

func (r *Registry) Len() int {
	return len(r.order)
}

// Attach registers every session's read handle with d and lets
// WaitOutput pump d while draining.
func (r *Registry) Attach(d Dispatcher) {
	for _, s := range r.order {
		s := s
		d.Register(s.Fd(), s.ID(), func() error {
			_, err := s.HandleReadable(0)
			return err
		})
		s.SetPump(func() {
			if err := d.Pump(); err != nil {
				r.log.Warn().Err(err).Msg("pump dispatcher")
			}
		})
	}
}

// Close interrupts any outstanding command. The processes themselves are
// not owned by the registry and stay untouched.
func (r *Registry) Close() {
	for _, s := range r.order {
		if s.Waiting() {
			if err := s.SendInt(); err != nil {
				r.log.Debug().Err(err).Str("node", s.ID()).Msg("interrupt on close")
			}
		}
		s.SetPump(nil)
	}
	r.log.Debug().Int("sessions", len(r.order)).Msg("sessions closed")
}
