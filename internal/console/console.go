package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/schovi/nodemux/internal/session"
)

const (
	// DefaultStopTimeout bounds how long an interrupted session is read
	// while waiting for its prompt.
	DefaultStopTimeout = 5 * time.Second

	// showTail is how many buffered lines a group switch replays.
	showTail = 2048

	inputBufferSize = 4096
)

type Config struct {
	// In is the descriptor operator input is read from, usually stdin.
	In  int
	Out io.Writer
	// Group is selected at start. Empty selects the first group.
	Group       string
	StopTimeout time.Duration
	// Quit is called once the console wants the run to end.
	Quit     func()
	Observer InterruptObserver
	Logger   zerolog.Logger
}

// Console is the operator surface over a registry: it reads lines from
// In, routes them to a focused node and prints the output of the selected
// group with a label per node. It lives on the dispatcher goroutine.
type Console struct {
	reg    *session.Registry
	router Router
	intr   *Interrupter

	in  int
	out io.Writer
	buf []byte

	selected *session.Group
	focus    *session.Session
	partial  []byte

	// lastNode wrote last; lineOpen is set when its line is unfinished.
	lastNode string
	lineOpen bool

	label  lipgloss.Style
	dead   lipgloss.Style
	header lipgloss.Style

	stopTimeout time.Duration
	quit        func()
	log         zerolog.Logger
}

func New(reg *session.Registry, cfg Config) (*Console, error) {
	if reg.Len() == 0 {
		return nil, errors.New("no sessions to display")
	}
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	stopTimeout := cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	quit := cfg.Quit
	if quit == nil {
		quit = func() {}
	}

	r := lipgloss.NewRenderer(out)
	c := &Console{
		reg:         reg,
		intr:        &Interrupter{Observer: cfg.Observer},
		in:          cfg.In,
		out:         out,
		buf:         make([]byte, inputBufferSize),
		label:       r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		dead:        r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		header:      r.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		stopTimeout: stopTimeout,
		quit:        quit,
		log:         cfg.Logger,
	}

	name := cfg.Group
	if name == "" {
		name = reg.Groups()[0].Name
	}
	if err := c.Select(name); err != nil {
		return nil, err
	}
	for _, s := range reg.All() {
		s.AddListener(c)
	}
	return c, nil
}

// Attach registers operator input with d.
func (c *Console) Attach(d session.Dispatcher) {
	d.Register(c.in, "input", c.HandleInput)
}

func (c *Console) Selected() *session.Group { return c.selected }
func (c *Console) Focus() *session.Session  { return c.focus }

// HandleInput reads what operator input is available and handles every
// complete line. End of input quits.
func (c *Console) HandleInput() error {
	n, err := unix.Read(c.in, c.buf)
	if err == unix.EINTR || err == unix.EAGAIN {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if n == 0 {
		c.log.Info().Msg("input closed")
		c.Quit()
		return io.EOF
	}
	c.Feed(c.buf[:n])
	return nil
}

// Feed splits data into lines and handles each complete one. A trailing
// partial line waits for the rest.
func (c *Console) Feed(data []byte) {
	c.partial = append(c.partial, data...)
	for {
		i := bytes.IndexByte(c.partial, '\n')
		if i < 0 {
			return
		}
		line := string(c.partial[:i+1])
		c.partial = c.partial[i+1:]
		c.HandleLine(line)
	}
}

// HandleLine runs a console command (":name args") or routes the line to
// its target node. Failures are reported on Out.
func (c *Console) HandleLine(line string) {
	// Lines for a running command that start with a colon go through :keys.
	if cmd, ok := strings.CutPrefix(strings.TrimSpace(line), ":"); ok {
		if err := c.Exec(cmd); err != nil {
			c.printf("error: %v\n", err)
		}
		return
	}
	target := c.Target(line)
	if target == nil {
		c.printf("error: no node focused\n")
		return
	}
	c.route(target, line)
}

func (c *Console) route(s *session.Session, line string) {
	err := c.router.Route(s, line)
	switch {
	case errors.Is(err, session.ErrSessionDead):
		c.printf("error: %s has exited\n", s.ID())
	case err != nil:
		c.printf("error: %v\n", err)
	}
}

// Target picks the session a line is meant for: the node whose prompt
// starts the line, otherwise the focused node.
func (c *Console) Target(line string) *session.Session {
	for _, s := range c.reg.All() {
		if strings.HasPrefix(line, s.Prompt()) {
			return s
		}
	}
	return c.focus
}

// Exec runs one console command without its leading colon.
func (c *Console) Exec(cmdline string) error {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return errors.New("empty command, try :help")
	}
	fn, ok := commands[fields[0]]
	if !ok {
		return fmt.Errorf("unknown command :%s, try :help", fields[0])
	}
	return fn(c, fields[1:])
}

// Select shows group name and focuses its first node, replaying recent
// output of every node in it.
func (c *Console) Select(name string) error {
	g, ok := c.reg.Group(name)
	if !ok {
		return fmt.Errorf("unknown group %q", name)
	}
	c.selected = g
	if len(g.Sessions) > 0 {
		c.focus = g.Sessions[0]
	}
	c.printf("%s\n", c.header.Render("== "+g.Name+" =="))
	for _, s := range g.Sessions {
		c.show(s, showTail)
	}
	return nil
}

func (c *Console) SetFocus(id string) error {
	s, ok := c.reg.Get(id)
	if !ok {
		return fmt.Errorf("unknown node %q", id)
	}
	c.focus = s
	return nil
}

// InterruptFocus interrupts the focused node and waits for its prompt.
func (c *Console) InterruptFocus() {
	if c.focus == nil {
		return
	}
	if err := c.intr.Interrupt(c.focus); err != nil {
		c.log.Debug().Err(err).Str("node", c.focus.ID()).Msg("interrupt focus")
		return
	}
	if err := c.settle(c.focus); err != nil {
		c.log.Warn().Err(err).Msg("settle after interrupt")
	}
}

// settle reads each live session until it prints the prompt that follows
// an interrupt, at most stopTimeout each. Until then a command sent to it
// would be completed by that prompt.
func (c *Console) settle(sessions ...*session.Session) error {
	var errs []error
	for _, s := range sessions {
		if s.Dead() {
			continue
		}
		if err := s.Settle(context.Background(), c.stopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Quit interrupts every node and asks the run to end. Nothing is sent
// after it, so it does not wait for the nodes to settle.
func (c *Console) Quit() {
	if err := c.intr.InterruptAll(c.reg.All()); err != nil {
		c.log.Debug().Err(err).Msg("interrupt on quit")
	}
	c.quit()
}

// OnOutput prints chunks from the selected group.
func (c *Console) OnOutput(s *session.Session, chunk []byte) {
	if !c.visible(s) {
		return
	}
	c.render(s, chunk)
}

func (c *Console) OnStateChange(s *session.Session, _, to session.State) {
	if to != session.StateDead || !c.visible(s) {
		return
	}
	c.printf("%s exited\n", c.dead.Render("["+s.ID()+"]"))
}

func (c *Console) visible(s *session.Session) bool {
	if c.selected == nil {
		return false
	}
	for _, member := range c.selected.Sessions {
		if member == s {
			return true
		}
	}
	return false
}

// render writes chunk with a node label at the start of every line. A
// line left open by another node is closed first.
func (c *Console) render(s *session.Session, chunk []byte) {
	if c.lineOpen && c.lastNode != s.ID() {
		c.endLine()
	}
	c.lastNode = s.ID()
	for _, piece := range bytes.SplitAfter(chunk, []byte{'\n'}) {
		if len(piece) == 0 {
			continue
		}
		if !c.lineOpen {
			c.printf("%s ", c.labelFor(s))
		}
		c.write(piece)
		c.lineOpen = piece[len(piece)-1] != '\n'
	}
}

func (c *Console) show(s *session.Session, n int) {
	tail := s.Tail(n)
	if tail == "" {
		return
	}
	c.render(s, []byte(tail))
	c.endLine()
}

func (c *Console) labelFor(s *session.Session) string {
	if s.Dead() {
		return c.dead.Render("[" + s.ID() + "]")
	}
	return c.label.Render("[" + s.ID() + "]")
}

func (c *Console) endLine() {
	if c.lineOpen {
		c.write([]byte{'\n'})
		c.lineOpen = false
	}
}

// printf writes a message on a line of its own.
func (c *Console) printf(format string, args ...any) {
	c.endLine()
	c.write([]byte(fmt.Sprintf(format, args...)))
}

func (c *Console) write(b []byte) {
	if _, err := c.out.Write(b); err != nil {
		c.log.Warn().Err(err).Msg("write console output")
	}
}
