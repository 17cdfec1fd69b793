// Package reactor is a single-threaded readiness dispatcher over poll(2).
//
// All callbacks, posted functions and nested Update passes run on the
// goroutine that called Run, so state touched only from callbacks needs no
// locking. Post and Stop are the only methods safe to call from other
// goroutines.
package reactor

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Callback handles one readiness event. It must read only what is
// available and return promptly. A non-nil error deactivates the handle:
// it is never dispatched again.
type Callback func() error

type handle struct {
	fd     int
	name   string
	cb     Callback
	active bool
	busy   bool
}

type Multiplexer struct {
	handles []*handle
	cursor  int

	wakeR, wakeW int

	mu      sync.Mutex
	posted  []func()
	stopped bool

	log zerolog.Logger
}

func New(log zerolog.Logger) (*Multiplexer, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, fmt.Errorf("wake pipe: %w", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, fmt.Errorf("wake pipe: %w", err)
		}
	}
	return &Multiplexer{wakeR: p[0], wakeW: p[1], log: log}, nil
}

// Register adds a readable descriptor. The descriptor is borrowed; the
// caller keeps ownership and must outlive the multiplexer's use of it.
func (m *Multiplexer) Register(fd int, name string, cb Callback) {
	m.handles = append(m.handles, &handle{fd: fd, name: name, cb: cb, active: true})
}

// Active returns the number of handles still being dispatched.
func (m *Multiplexer) Active() int {
	n := 0
	for _, h := range m.handles {
		if h.active {
			n++
		}
	}
	return n
}

// Run dispatches readiness events until Stop is called or ctx is done.
func (m *Multiplexer) Run(ctx context.Context) error {
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		select {
		case <-ctx.Done():
			m.Stop()
		case <-quit:
		}
	}()

	m.log.Debug().Int("handles", len(m.handles)).Msg("dispatcher running")
	for !m.isStopped() {
		if _, err := m.step(-1); err != nil {
			return err
		}
	}
	m.log.Debug().Msg("dispatcher stopped")
	return ctx.Err()
}

// Update runs posted functions and performs at most one dispatch, waiting
// no longer than timeoutMs for readiness. Handles whose callback is
// currently executing are skipped, so calling Update from inside a
// callback cannot re-enter that callback.
func (m *Multiplexer) Update(timeoutMs int) error {
	_, err := m.step(timeoutMs)
	return err
}

// Pump dispatches whatever is ready right now, at most once per handle,
// without waiting. Like Update it never re-enters a running callback.
func (m *Multiplexer) Pump() error {
	for range m.handles {
		dispatched, err := m.step(0)
		if err != nil || !dispatched {
			return err
		}
	}
	return nil
}

// Stop makes Run return after the current dispatch.
func (m *Multiplexer) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.wake()
}

// Post schedules fn to run on the dispatcher goroutine.
func (m *Multiplexer) Post(fn func()) {
	m.mu.Lock()
	m.posted = append(m.posted, fn)
	m.mu.Unlock()
	m.wake()
}

// Close releases the wake pipe. Registered descriptors are not touched.
func (m *Multiplexer) Close() error {
	unix.Close(m.wakeW)
	return unix.Close(m.wakeR)
}

func (m *Multiplexer) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *Multiplexer) wake() {
	// A full pipe already guarantees a pending wakeup.
	unix.Write(m.wakeW, []byte{1})
}

func (m *Multiplexer) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(m.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (m *Multiplexer) runPosted() {
	m.mu.Lock()
	posted := m.posted
	m.posted = nil
	m.mu.Unlock()

	for _, fn := range posted {
		fn()
	}
}

func (m *Multiplexer) step(timeoutMs int) (bool, error) {
	m.runPosted()
	if m.isStopped() {
		return false, nil
	}

	fds := make([]unix.PollFd, 1, len(m.handles)+1)
	fds[0] = unix.PollFd{Fd: int32(m.wakeR), Events: unix.POLLIN}
	index := make([]int, 0, len(m.handles))
	for i, h := range m.handles {
		if !h.active || h.busy {
			continue
		}
		fds = append(fds, unix.PollFd{Fd: int32(h.fd), Events: unix.POLLIN})
		index = append(index, i)
	}

	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if fds[0].Revents != 0 {
		m.drainWake()
		m.runPosted()
	}

	// Rotate the starting point so a chatty handle cannot starve the rest.
	count := len(m.handles)
	for k := 0; k < count; k++ {
		i := (m.cursor + k) % count
		pos := position(index, i)
		if pos < 0 || fds[pos+1].Revents == 0 {
			continue
		}
		h := m.handles[i]
		if !h.active || h.busy {
			continue
		}
		m.cursor = (i + 1) % count
		m.dispatch(h)
		return true, nil
	}
	return false, nil
}

func position(index []int, i int) int {
	for pos, v := range index {
		if v == i {
			return pos
		}
	}
	return -1
}

func (m *Multiplexer) dispatch(h *handle) {
	h.busy = true
	err := h.cb()
	h.busy = false
	if err != nil {
		h.active = false
		m.log.Info().Err(err).Str("handle", h.name).Msg("handle deactivated")
	}
}
