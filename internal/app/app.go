// Package app wires a run together: node processes, the sessions on top
// of them, the dispatcher and the operator console.
//
// Ownership runs one way. The network owns the processes, the registry
// owns the sessions and the multiplexer borrows their descriptors.
// Teardown happens in reverse: stop the multiplexer, close the sessions,
// then stop the network.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/schovi/nodemux/internal/config"
	"github.com/schovi/nodemux/internal/console"
	"github.com/schovi/nodemux/internal/metrics"
	"github.com/schovi/nodemux/internal/node"
	"github.com/schovi/nodemux/internal/reactor"
	"github.com/schovi/nodemux/internal/session"
	"github.com/schovi/nodemux/internal/wait"
)

type App struct {
	cfg     *config.Config
	net     *node.Network
	reg     *session.Registry
	mux     *reactor.Multiplexer
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// Start brings up every configured node and attaches its session to a new
// multiplexer. Nodes are settled: each has printed its first prompt.
func Start(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	maxOutput, err := cfg.MaxOutputBytes()
	if err != nil {
		return nil, fmt.Errorf("max_output: %w", err)
	}

	markers := make(map[string]string)
	var specs []node.GroupSpec
	for _, g := range cfg.Groups {
		gs := node.GroupSpec{Name: g.Name}
		for _, name := range g.Nodes {
			markers[name] = marker(cfg.Completion, name)
			gs.Nodes = append(gs.Nodes, node.Spec{
				Name:      name,
				Command:   cfg.Shell,
				Marker:    markers[name],
				KillGrace: cfg.KillGrace,
			})
		}
		specs = append(specs, gs)
	}

	net, err := node.StartNetwork(specs, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		net:     net,
		metrics: metrics.New(),
		log:     log,
	}

	var groups []session.Group
	for _, g := range net.Groups() {
		sg := session.Group{Name: g.Name}
		for _, p := range g.Processes {
			sg.Sessions = append(sg.Sessions, session.New(p,
				session.WithMarker(markers[p.Name()]),
				session.WithStripANSI(cfg.StripANSI),
				session.WithPollInterval(cfg.PollInterval),
				session.WithMaxOutput(maxOutput),
				session.WithLogger(log),
			))
		}
		groups = append(groups, sg)
	}

	a.reg, err = session.NewRegistry(groups, log)
	if err != nil {
		net.Stop()
		return nil, err
	}
	a.metrics.Track(a.reg.All())

	a.mux, err = reactor.New(log)
	if err != nil {
		a.reg.Close()
		net.Stop()
		return nil, err
	}
	a.reg.Attach(a.mux)

	if err := a.settle(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// marker is what node name's shell prints when it is ready for input.
func marker(completion, name string) string {
	if completion == config.CompletionSentinel {
		return "__nodemux_" + strings.ReplaceAll(uuid.NewString(), "-", "") + "__"
	}
	return session.Prompt(name)
}

// settle reads each node until its first prompt shows up, so a command
// sent next is not mistaken as finished by the startup prompt.
func (a *App) settle(ctx context.Context) error {
	for _, s := range a.reg.All() {
		err := s.Settle(ctx, a.settleTimeout())
		switch {
		case errors.Is(err, wait.ErrTimeout):
			a.log.Warn().Str("node", s.ID()).Msg("node did not print a prompt")
		case errors.Is(err, session.ErrSessionDead):
			a.log.Warn().Str("node", s.ID()).Msg("node exited during startup")
		case err != nil:
			return err
		}
	}
	return nil
}

func (a *App) settleTimeout() time.Duration {
	if a.cfg.StopTimeout > 0 {
		return a.cfg.StopTimeout
	}
	return console.DefaultStopTimeout
}

// RunConsole runs the interactive console on in and out until the
// operator quits, input ends or ctx is done. SIGINT interrupts the focused
// node; SIGTERM and SIGHUP quit.
func (a *App) RunConsole(ctx context.Context, in int, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c, err := console.New(a.reg, console.Config{
		In:          in,
		Out:         out,
		Group:       a.cfg.Select,
		StopTimeout: a.cfg.StopTimeout,
		Quit:        a.mux.Stop,
		Observer:    a.metrics,
		Logger:      a.log,
	})
	if err != nil {
		return err
	}
	c.Attach(a.mux)

	if a.cfg.MetricsAddr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, a.cfg.MetricsAddr, a.log); err != nil {
				a.log.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				a.log.Debug().Str("signal", sig.String()).Msg("signal received")
				if sig == syscall.SIGINT {
					a.mux.Post(c.InterruptFocus)
				} else {
					a.mux.Post(c.Quit)
				}
			}
		}
	}()

	a.log.Info().Int("nodes", a.reg.Len()).Msg("console ready")
	err = a.mux.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Result is what one node printed for a command.
type Result struct {
	Node   string
	Output string
	Err    error
}

// Exec runs cmd on every node in sessions and waits for each to finish,
// at most timeout per node (zero waits indefinitely). Nodes still running
// at the deadline are interrupted.
func (a *App) Exec(ctx context.Context, sessions []*session.Session, cmd string, timeout time.Duration) []Result {
	results := make([]Result, len(sessions))
	for i, s := range sessions {
		results[i].Node = s.ID()
		s.Clear()
		results[i].Err = s.SendCmd(cmd)
	}

	for i, s := range sessions {
		if results[i].Err != nil {
			continue
		}
		if err := waitOutput(ctx, s, timeout); err != nil {
			results[i].Err = err
			if s.Waiting() {
				a.interrupt(ctx, s)
			}
		}
	}

	for i, s := range sessions {
		results[i].Output = strings.TrimSuffix(string(s.Output()), s.Prompt())
	}
	return results
}

// interrupt cancels the command on s and consumes the prompt the shell
// prints afterwards.
func (a *App) interrupt(ctx context.Context, s *session.Session) {
	if err := s.SendInt(); err != nil {
		a.log.Debug().Err(err).Str("node", s.ID()).Msg("interrupt")
		return
	}
	a.metrics.ObserveInterrupt(s.ID())
	if err := s.Settle(ctx, a.settleTimeout()); err != nil {
		a.log.Warn().Err(err).Str("node", s.ID()).Msg("node did not settle after interrupt")
	}
}

func waitOutput(ctx context.Context, s *session.Session, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.WaitOutput(ctx)
}

// Sessions resolves names of groups or nodes to sessions, in order and
// without repeats. No names means every session.
func (a *App) Sessions(names []string) ([]*session.Session, error) {
	if len(names) == 0 {
		return a.reg.All(), nil
	}
	seen := make(map[*session.Session]bool)
	var out []*session.Session
	add := func(s *session.Session) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, name := range names {
		if g, ok := a.reg.Group(name); ok {
			for _, s := range g.Sessions {
				add(s)
			}
			continue
		}
		s, ok := a.reg.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown group or node %q", name)
		}
		add(s)
	}
	return out, nil
}

// Close tears the run down: dispatcher first, then sessions, then the
// node processes.
func (a *App) Close() {
	if a.mux != nil {
		a.mux.Stop()
	}
	if a.reg != nil {
		a.reg.Close()
	}
	a.net.Stop()
	if a.mux != nil {
		if err := a.mux.Close(); err != nil {
			a.log.Debug().Err(err).Msg("close multiplexer")
		}
	}
}
