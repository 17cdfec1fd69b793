package node

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Spec describes one node shell.
type Spec struct {
	Name    string
	Command string
	Env     []string
	Dir     string
	// Marker is exported as PS1. The shell prints it whenever it is ready
	// for the next command.
	Marker string
	// KillGrace is how long Close waits after SIGHUP. Zero means
	// KillGracePeriod.
	KillGrace time.Duration
}

// Process is a shell running behind a pty. It satisfies the narrow
// contract the session layer consumes: a readiness handle, a bounded read,
// line and byte writes, and an interrupt.
type Process struct {
	name string
	cmd  *exec.Cmd
	ptmx *os.File
	fd   int

	done      chan struct{}
	waitErr   error
	closeOnce sync.Once
	killGrace time.Duration
	buf       []byte
	log       zerolog.Logger
}

// Start spawns spec.Command (default: /bin/sh) on a new pty with echo
// disabled, TERM=dumb and PS1 set to the spec's marker.
func Start(spec Spec, log zerolog.Logger) (*Process, error) {
	if err := ValidateName(spec.Name); err != nil {
		return nil, err
	}

	command := spec.Command
	if command == "" {
		command = DefaultShell
	}

	var cmd *exec.Cmd
	if strings.Contains(command, " ") {
		cmd = exec.Command("sh", "-c", command)
	} else {
		cmd = exec.Command(command)
	}
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), "TERM="+DefaultTermValue)
	if spec.Marker != "" {
		cmd.Env = append(cmd.Env, "PS1="+spec.Marker)
	}
	cmd.Env = append(cmd.Env, spec.Env...)

	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("open pty: %w", err)
	}
	defer tty.Close()

	if err := disableEcho(int(tty.Fd())); err != nil {
		ptmx.Close()
		return nil, fmt.Errorf("configure tty: %w", err)
	}

	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := cmd.Start(); err != nil {
		ptmx.Close()
		return nil, fmt.Errorf("start %s: %w", command, err)
	}

	killGrace := spec.KillGrace
	if killGrace <= 0 {
		killGrace = KillGracePeriod
	}

	p := &Process{
		name:      spec.Name,
		cmd:       cmd,
		ptmx:      ptmx,
		fd:        int(ptmx.Fd()),
		done:      make(chan struct{}),
		killGrace: killGrace,
		buf:       make([]byte, ReadBufferSize),
		log:       log.With().Str("node", spec.Name).Int("pid", cmd.Process.Pid).Logger(),
	}
	go p.wait()

	p.log.Debug().Str("command", command).Msg("node started")
	return p, nil
}

func disableEcho(fd int) error {
	termios, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return err
	}
	termios.Lflag &^= unix.ECHO | unix.ECHONL
	return unix.IoctlSetTermios(fd, ioctlSetTermios, termios)
}

func (p *Process) wait() {
	p.waitErr = p.cmd.Wait()
	close(p.done)
}

func (p *Process) Name() string { return p.name }

func (p *Process) PID() int { return p.cmd.Process.Pid }

// Fd is the pty master descriptor, used for readiness registration. It is
// borrowed: the Process owns and closes it.
func (p *Process) Fd() int { return p.fd }

// ReadAvailable waits at most timeout for output and returns whatever one
// read yields. A zero-length result with a nil error means nothing arrived.
// io.EOF is returned once the shell is gone.
func (p *Process) ReadAvailable(timeout time.Duration) ([]byte, error) {
	fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	count, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("poll %s: %w", p.name, err)
	}
	if count == 0 {
		return nil, nil
	}

	revents := fds[0].Revents
	if revents&unix.POLLNVAL != 0 {
		return nil, io.EOF
	}
	if revents&unix.POLLIN == 0 && revents&(unix.POLLHUP|unix.POLLERR) != 0 {
		return nil, io.EOF
	}

	n, err := unix.Read(p.fd, p.buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return nil, nil
		}
		// Linux reports EIO on the master once the slave side is closed.
		if errors.Is(err, unix.EIO) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read %s: %w", p.name, err)
	}
	if n == 0 {
		return nil, io.EOF
	}
	return append([]byte{}, p.buf[:n]...), nil
}

// WriteLine writes text followed by a newline.
func (p *Process) WriteLine(text string) error {
	if _, err := p.ptmx.WriteString(text + "\n"); err != nil {
		return fmt.Errorf("write %s: %w", p.name, err)
	}
	return nil
}

// WriteChar writes a single byte.
func (p *Process) WriteChar(c byte) error {
	if _, err := p.ptmx.Write([]byte{c}); err != nil {
		return fmt.Errorf("write %s: %w", p.name, err)
	}
	return nil
}

// Interrupt writes the terminal interrupt character. The pty line
// discipline turns it into SIGINT for the foreground process group, so
// the running command is cancelled and the shell survives.
func (p *Process) Interrupt() error {
	return p.WriteChar(InterruptChar)
}

// Exited reports whether the shell has terminated.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Close hangs up the shell's session, escalates to SIGKILL after the kill
// grace period, and releases the pty. Safe to call more than once.
func (p *Process) Close() error {
	var err error
	p.closeOnce.Do(func() {
		pid := p.PID()
		if !p.Exited() {
			// Interactive shells ignore SIGTERM; SIGHUP ends them.
			unix.Kill(-pid, unix.SIGHUP)
			select {
			case <-p.done:
			case <-time.After(p.killGrace):
				p.log.Warn().Msg("node ignored SIGHUP, killing")
				unix.Kill(-pid, unix.SIGKILL)
				<-p.done
			}
		}
		err = p.ptmx.Close()
		p.log.Debug().Int("pid", pid).AnErr("exit", p.ExitError()).Msg("node released")
	})
	return err
}

// ExitError returns the shell's exit error once it has terminated.
func (p *Process) ExitError() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}
