package node

import (
	"fmt"

	"github.com/rs/zerolog"
)

// GroupSpec is a named, ordered set of nodes (hosts, switches, ...).
type GroupSpec struct {
	Name  string
	Nodes []Spec
}

// Group is a started GroupSpec.
type Group struct {
	Name      string
	Processes []*Process
}

// Network owns every node process of a run. It is created once, handed to
// whoever needs the processes, and stopped last: after the dispatcher and
// the sessions built on top of it.
type Network struct {
	groups []Group
	byName map[string]*Process
	log    zerolog.Logger
}

// StartNetwork starts all nodes in order. If any node fails to start the
// ones already running are stopped.
func StartNetwork(groups []GroupSpec, log zerolog.Logger) (*Network, error) {
	n := &Network{
		byName: make(map[string]*Process),
		log:    log,
	}

	for _, gs := range groups {
		g := Group{Name: gs.Name}
		for _, spec := range gs.Nodes {
			if _, exists := n.byName[spec.Name]; exists {
				n.Stop()
				return nil, fmt.Errorf("node %q defined twice", spec.Name)
			}
			p, err := Start(spec, log)
			if err != nil {
				n.Stop()
				return nil, fmt.Errorf("start node %q: %w", spec.Name, err)
			}
			g.Processes = append(g.Processes, p)
			n.byName[spec.Name] = p
		}
		n.groups = append(n.groups, g)
	}

	log.Info().Int("groups", len(n.groups)).Int("nodes", len(n.byName)).Msg("network started")
	return n, nil
}

func (n *Network) Groups() []Group {
	return n.groups
}

func (n *Network) Node(name string) (*Process, bool) {
	p, ok := n.byName[name]
	return p, ok
}

// Stop closes every process. Errors are logged, not returned: teardown
// continues past a misbehaving node.
func (n *Network) Stop() {
	for _, g := range n.groups {
		for _, p := range g.Processes {
			if err := p.Close(); err != nil {
				n.log.Debug().Err(err).Str("node", p.Name()).Msg("close node")
			}
		}
	}
	// Processes started before a failed StartNetwork are only in byName.
	for _, p := range n.byName {
		p.Close()
	}
	n.log.Info().Msg("network stopped")
}
