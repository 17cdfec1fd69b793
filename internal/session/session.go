package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/schovi/nodemux/internal/filter"
	"github.com/schovi/nodemux/internal/wait"
)

var ErrSessionDead = errors.New("session is dead")

const (
	// settlePoll bounds each read while settling.
	settlePoll = 100 * time.Millisecond

	// holdTimeout is how long a running command's output that ends like
	// the start of the marker waits for the rest of it.
	holdTimeout = 50 * time.Millisecond
)

type State string

const (
	StateIdle    State = "idle"
	StateWaiting State = "waiting"
	StateDead    State = "dead"
)

// Process is the node behind a session: a shell reachable through a
// readable descriptor and a few writes.
type Process interface {
	Name() string
	Fd() int
	// ReadAvailable returns at most one chunk, waiting no longer than
	// timeout. Empty with nil error means nothing arrived; io.EOF means
	// the node is gone.
	ReadAvailable(timeout time.Duration) ([]byte, error)
	WriteLine(text string) error
	WriteChar(c byte) error
	Interrupt() error
}

// Listener observes a session. Callbacks run on the dispatcher goroutine.
type Listener interface {
	OnOutput(s *Session, chunk []byte)
	OnStateChange(s *Session, from, to State)
}

// Session tracks one node: whether a dispatched command is outstanding
// and everything the node has printed. It is owned by the dispatcher
// goroutine and must not be used concurrently.
type Session struct {
	id     string
	prompt string
	proc   Process
	state  State
	buf    *Buffer
	// prompted is set when the node prints its marker and cleared by
	// SendInt, so Settle knows a fresh prompt arrived.
	prompted bool

	detector     *filter.Detector
	stripANSI    bool
	pollInterval time.Duration
	pump         func()
	listeners    []Listener
	log          zerolog.Logger
}

type Option func(*Session)

// WithMarker sets the string the node's shell prints when it is ready for
// input, when that differs from the display prompt.
func WithMarker(marker string) Option {
	return func(s *Session) {
		s.detector = filter.NewDetector(marker)
	}
}

func WithStripANSI(strip bool) Option {
	return func(s *Session) {
		s.stripANSI = strip
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		s.pollInterval = d
	}
}

func WithMaxOutput(size int) Option {
	return func(s *Session) {
		s.buf = NewBuffer(size)
	}
}

func WithListener(l Listener) Option {
	return func(s *Session) {
		s.listeners = append(s.listeners, l)
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

func New(proc Process, opts ...Option) *Session {
	id := proc.Name()
	s := &Session{
		id:           id,
		prompt:       Prompt(id),
		proc:         proc,
		state:        StateIdle,
		buf:          NewBuffer(0),
		pollInterval: wait.DefaultPollInterval,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.detector == nil {
		s.detector = filter.NewDetector(s.prompt)
	}
	s.log = s.log.With().Str("node", id).Logger()
	return s
}

// Prompt is the display prompt of node id.
func Prompt(id string) string {
	return id + "# "
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Prompt() string    { return s.prompt }
func (s *Session) State() State      { return s.state }
func (s *Session) Waiting() bool     { return s.state == StateWaiting }
func (s *Session) Dead() bool        { return s.state == StateDead }
func (s *Session) Fd() int           { return s.proc.Fd() }
func (s *Session) Output() []byte    { return s.buf.Bytes() }
func (s *Session) OutputLen() int    { return s.buf.Len() }
func (s *Session) Tail(n int) string { return s.buf.Tail(n) }

// AddListener subscribes l to output and state changes.
func (s *Session) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

// SetPump installs the function WaitOutput calls between polls to let the
// dispatcher service other sessions.
func (s *Session) SetPump(pump func()) {
	s.pump = pump
}

// SendCmd writes cmd and a line terminator to the node and marks the
// session waiting. While a command is outstanding it does nothing.
func (s *Session) SendCmd(cmd string) error {
	switch s.state {
	case StateDead:
		return ErrSessionDead
	case StateWaiting:
		s.log.Debug().Str("cmd", cmd).Msg("command ignored, session busy")
		return nil
	}

	if err := s.proc.WriteLine(cmd); err != nil {
		return fmt.Errorf("send command to %s: %w", s.id, err)
	}
	s.setState(StateWaiting)
	return nil
}

// Write forwards one byte to the running command. Ignored unless a
// command is outstanding.
func (s *Session) Write(c byte) error {
	if s.state != StateWaiting {
		return nil
	}
	if err := s.proc.WriteChar(c); err != nil {
		return fmt.Errorf("write to %s: %w", s.id, err)
	}
	return nil
}

// SendInt interrupts the node and forces the session idle, whether or not
// a command was outstanding.
func (s *Session) SendInt() error {
	if s.state == StateDead {
		return ErrSessionDead
	}
	s.prompted = false
	err := s.proc.Interrupt()
	s.setState(StateIdle)
	if err != nil {
		return fmt.Errorf("interrupt %s: %w", s.id, err)
	}
	return nil
}

// Clear empties the output buffer. The waiting state is untouched.
func (s *Session) Clear() {
	s.buf.Clear()
}

// HandleReadable reads one chunk (waiting at most timeout), filters it and
// appends it to the buffer. When the node's prompt ends the chunk the
// session returns to idle and the prompt is appended. It returns what was
// appended. End of stream moves the session to the dead state and yields
// ErrSessionDead.
func (s *Session) HandleReadable(timeout time.Duration) ([]byte, error) {
	if s.state == StateDead {
		return nil, ErrSessionDead
	}

	raw, err := s.proc.ReadAvailable(timeout)
	if err != nil {
		return s.closed(nil, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	chunk, done := s.detector.Scan(s.clean(raw))
	// A command blocked on input may end its output with what looks like
	// the start of the marker. Nothing is held back past holdTimeout.
	for !done && s.state == StateWaiting && s.detector.Holding() {
		raw, err = s.proc.ReadAvailable(holdTimeout)
		if err != nil {
			return s.closed(chunk, err)
		}
		if len(raw) == 0 {
			chunk = append(chunk, s.detector.Flush()...)
			break
		}
		var more []byte
		more, done = s.detector.Scan(s.clean(raw))
		chunk = append(chunk, more...)
	}

	if done {
		chunk = append(chunk, s.prompt...)
		s.prompted = true
	}
	s.emit(chunk)
	if done && s.state == StateWaiting {
		s.setState(StateIdle)
	}
	return chunk, nil
}

func (s *Session) clean(raw []byte) []byte {
	data := raw
	if s.stripANSI {
		data = filter.StripANSI(data)
	}
	return filter.Control(data)
}

// closed records the end of the node's output. chunk is what was read
// before the stream ended.
func (s *Session) closed(chunk []byte, err error) ([]byte, error) {
	if errors.Is(err, io.EOF) {
		s.log.Info().Msg("node output closed")
	} else {
		s.log.Warn().Err(err).Msg("node read failed")
	}
	chunk = append(chunk, s.detector.Flush()...)
	s.emit(chunk)
	s.setState(StateDead)
	return chunk, ErrSessionDead
}

// WaitOutput polls the node until the outstanding command completes,
// yielding to the dispatcher between polls. A concurrent SendInt ends the
// wait at the next poll.
func (s *Session) WaitOutput(ctx context.Context) error {
	_, err := wait.Drain(ctx, func(poll time.Duration) (bool, error) {
		if !s.Waiting() {
			return true, nil
		}
		if _, err := s.HandleReadable(poll); err != nil {
			return false, err
		}
		if s.pump != nil {
			s.pump()
		}
		return !s.Waiting(), nil
	}, wait.Config{PollInterval: s.pollInterval})
	return err
}

// Settle reads the node until it prints a prompt, bounded by timeout (zero
// waits indefinitely). Once the node has printed one since the last
// SendInt it returns at once. Settling after an interrupt keeps the
// prompt the shell prints then from completing the next command.
func (s *Session) Settle(ctx context.Context, timeout time.Duration) error {
	_, err := wait.Drain(ctx, func(poll time.Duration) (bool, error) {
		if s.prompted {
			return true, nil
		}
		if _, err := s.HandleReadable(poll); err != nil {
			return false, err
		}
		if s.pump != nil {
			s.pump()
		}
		return s.prompted, nil
	}, wait.Config{PollInterval: settlePoll, Timeout: timeout})
	return err
}

func (s *Session) emit(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.buf.Append(chunk)
	for _, l := range s.listeners {
		l.OnOutput(s, chunk)
	}
}

func (s *Session) setState(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("session state")
	for _, l := range s.listeners {
		l.OnStateChange(s, from, to)
	}
}
