package console

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schovi/nodemux/internal/reactor"
)

func newTestConsole(t *testing.T) (*Console, *testNet, *bytes.Buffer, *int) {
	t.Helper()
	n := newTestNet(t)
	out := &bytes.Buffer{}
	quits := 0
	c, err := New(n.reg, Config{
		Out:         out,
		StopTimeout: 200 * time.Millisecond,
		Quit:        func() { quits++ },
	})
	require.NoError(t, err)
	return c, n, out, &quits
}

func TestNewSelectsFirstGroup(t *testing.T) {
	c, _, out, _ := newTestConsole(t)

	assert.Equal(t, "hosts", c.Selected().Name)
	assert.Equal(t, "h1", c.Focus().ID())
	assert.Contains(t, out.String(), "== hosts ==")
}

func TestNewRejectsUnknownGroup(t *testing.T) {
	n := newTestNet(t)
	_, err := New(n.reg, Config{Group: "routers"})
	assert.Error(t, err)
}

func TestFeedRoutesToFocus(t *testing.T) {
	c, n, _, _ := newTestConsole(t)

	c.Feed([]byte("ec"))
	assert.Empty(t, n.procs["h1"].lines)

	c.Feed([]byte("ho hi\nuptime"))
	assert.Equal(t, []string{"echo hi"}, n.procs["h1"].lines)
}

func TestFeedTargetsPromptedNode(t *testing.T) {
	c, n, _, _ := newTestConsole(t)

	c.Feed([]byte("h2# uptime\n"))
	assert.Empty(t, n.procs["h1"].lines)
	assert.Equal(t, []string{"uptime"}, n.procs["h2"].lines)
}

func TestFeedPassthroughWhileWaiting(t *testing.T) {
	c, n, _, _ := newTestConsole(t)

	c.Feed([]byte("read x\n"))
	c.Feed([]byte("yes\n"))

	assert.Equal(t, []string{"read x"}, n.procs["h1"].lines)
	assert.Equal(t, "yes\n", string(n.procs["h1"].chars))
}

func TestFocusCommand(t *testing.T) {
	c, n, out, _ := newTestConsole(t)

	c.Feed([]byte(":focus s1\npwd\n"))
	assert.Equal(t, "s1", c.Focus().ID())
	assert.Equal(t, []string{"pwd"}, n.procs["s1"].lines)
	assert.Contains(t, out.String(), "focus s1")

	c.Feed([]byte(":focus r9\n"))
	assert.Contains(t, out.String(), `error: unknown node "r9"`)
}

func TestRenderLabelsSelectedGroup(t *testing.T) {
	_, n, out, _ := newTestConsole(t)
	out.Reset()

	n.emit(t, "h1", "one\ntw")
	n.emit(t, "h2", "x\n")
	n.emit(t, "h1", "o\n")
	n.emit(t, "s1", "hidden\n")

	assert.Equal(t, "[h1] one\n[h1] tw\n[h2] x\n[h1] o\n", out.String())
}

func TestSelectReplaysOutput(t *testing.T) {
	c, n, out, _ := newTestConsole(t)
	n.emit(t, "s1", "booted\n")
	out.Reset()

	c.Feed([]byte(":switches\n"))
	assert.Equal(t, "switches", c.Selected().Name)
	assert.Equal(t, "s1", c.Focus().ID())
	assert.Contains(t, out.String(), "== switches ==")
	assert.Contains(t, out.String(), "[s1] booted\n")

	c.Feed([]byte(":controllers\n"))
	assert.Contains(t, out.String(), `error: unknown group "controllers"`)
	assert.Equal(t, "switches", c.Selected().Name)
}

func TestIntCommand(t *testing.T) {
	c, n, _, _ := newTestConsole(t)
	c.Feed([]byte("sleep 100\n"))
	require.True(t, n.session(t, "h1").Waiting())

	c.Feed([]byte(":int\n"))
	assert.False(t, n.session(t, "h1").Waiting())
	assert.Equal(t, 1, n.procs["h1"].interrupts)
	assert.Empty(t, n.procs["h1"].reads)

	// The prompt after the interrupt is consumed, so it cannot finish
	// the next command.
	c.Feed([]byte("sleep 2\n"))
	_, err := n.session(t, "h1").HandleReadable(0)
	require.NoError(t, err)
	assert.True(t, n.session(t, "h1").Waiting())

	c.Feed([]byte(":int s1\n"))
	assert.Equal(t, 1, n.procs["s1"].interrupts)
	assert.Empty(t, n.procs["s1"].reads)
}

func TestIntCommandReportsUnsettledNode(t *testing.T) {
	c, n, out, _ := newTestConsole(t)
	c.Feed([]byte("sleep 100\n"))
	n.procs["h1"].noPrompt = true

	c.Feed([]byte(":int\n"))
	assert.False(t, n.session(t, "h1").Waiting())
	assert.Contains(t, out.String(), "error: h1: timeout waiting for output")
}

func TestInterruptFocusSettles(t *testing.T) {
	c, n, _, _ := newTestConsole(t)
	c.Feed([]byte("sleep 100\n"))

	c.InterruptFocus()
	assert.False(t, n.session(t, "h1").Waiting())
	assert.Empty(t, n.procs["h1"].reads)
	assert.True(t, strings.HasSuffix(string(n.session(t, "h1").Output()), "h1# "))
}

func TestStopInterruptsShownGroup(t *testing.T) {
	c, n, out, _ := newTestConsole(t)
	c.Feed([]byte(":all ping s1\n"))
	require.True(t, n.session(t, "h1").Waiting())
	require.True(t, n.session(t, "h2").Waiting())

	c.Feed([]byte(":stop\n"))

	assert.False(t, n.session(t, "h1").Waiting())
	assert.False(t, n.session(t, "h2").Waiting())
	assert.Equal(t, 1, n.procs["h1"].interrupts)
	assert.Equal(t, 1, n.procs["h2"].interrupts)
	assert.Zero(t, n.procs["s1"].interrupts)

	// Each node's post-interrupt prompt is read before the report.
	text := out.String()
	stopped := strings.Index(text, "stopped hosts")
	require.GreaterOrEqual(t, stopped, 0)
	for _, id := range []string{"h1", "h2"} {
		assert.Equal(t, "\r\n"+id+"# ", string(n.session(t, id).Output()))
		prompt := strings.Index(text, "["+id+"] "+id+"# ")
		require.GreaterOrEqual(t, prompt, 0, id)
		assert.Less(t, prompt, stopped, id)
	}
}

func TestStopReportsNodeThatDoesNotSettle(t *testing.T) {
	c, n, out, _ := newTestConsole(t)
	c.Feed([]byte(":all sleep 100\n"))
	n.procs["h2"].noPrompt = true

	c.Feed([]byte(":stop\n"))

	assert.Contains(t, out.String(), "h2: timeout waiting for output")
	assert.NotContains(t, out.String(), "stopped hosts")
}

func TestAllSkipsBusyNodes(t *testing.T) {
	c, n, _, _ := newTestConsole(t)
	c.Feed([]byte("sleep 5\n"))

	c.Feed([]byte(":all date -u\n"))
	assert.Equal(t, []string{"sleep 5"}, n.procs["h1"].lines)
	assert.Equal(t, []string{"date -u"}, n.procs["h2"].lines)
}

func TestClearCommand(t *testing.T) {
	c, n, _, _ := newTestConsole(t)
	n.emit(t, "h1", "data\n")
	n.emit(t, "s1", "data\n")

	c.Feed([]byte(":clear\n"))
	assert.Zero(t, n.session(t, "h1").OutputLen())
	assert.NotZero(t, n.session(t, "s1").OutputLen())
}

func TestKeysCommand(t *testing.T) {
	c, n, out, _ := newTestConsole(t)

	c.Feed([]byte(":keys q\n"))
	assert.Contains(t, out.String(), "h1 is not running a command")
	assert.Empty(t, n.procs["h1"].chars)

	c.Feed([]byte("less file\n"))
	c.Feed([]byte(":keys :q\\n\n"))
	assert.Equal(t, ":q\n", string(n.procs["h1"].chars))
}

func TestListCommand(t *testing.T) {
	c, _, out, _ := newTestConsole(t)
	c.Feed([]byte("sleep 1\n"))
	out.Reset()

	c.Feed([]byte(":list\n"))
	assert.Equal(t, "* hosts: >h1(waiting) h2\n  switches: s1\n", out.String())
}

func TestShowCommand(t *testing.T) {
	c, n, out, _ := newTestConsole(t)
	n.emit(t, "s1", "log line\n")
	out.Reset()

	c.Feed([]byte(":show s1\n"))
	assert.Equal(t, "[s1] log line\n", out.String())
}

func TestHelpAndUnknownCommand(t *testing.T) {
	c, _, out, _ := newTestConsole(t)

	c.Feed([]byte(":help\n"))
	assert.Contains(t, out.String(), ":quit")

	c.Feed([]byte(":bogus\n"))
	assert.Contains(t, out.String(), "error: unknown command :bogus")
}

func TestQuitInterruptsEverything(t *testing.T) {
	c, n, _, quits := newTestConsole(t)

	c.Feed([]byte(":quit\n"))
	assert.Equal(t, 1, *quits)
	for id, p := range n.procs {
		assert.Equal(t, 1, p.interrupts, id)
	}
}

func TestDeadNodeMarked(t *testing.T) {
	c, n, out, _ := newTestConsole(t)
	n.procs["h2"].eof = true
	_, err := n.session(t, "h2").HandleReadable(0)
	require.Error(t, err)
	assert.Contains(t, out.String(), "[h2] exited\n")

	c.Feed([]byte("h2# ls\n"))
	assert.Contains(t, out.String(), "error: h2 has exited")
}

func TestHandleInputFromPipe(t *testing.T) {
	n := newTestNet(t)
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})

	quits := 0
	c, err := New(n.reg, Config{In: int(r.Fd()), Quit: func() { quits++ }})
	require.NoError(t, err)

	m, err := reactor.New(zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	c.Attach(m)

	_, err = w.Write([]byte("hostname\n"))
	require.NoError(t, err)
	require.NoError(t, m.Update(1000))
	assert.Equal(t, []string{"hostname"}, n.procs["h1"].lines)

	require.NoError(t, w.Close())
	require.NoError(t, m.Update(1000))
	assert.Equal(t, 1, quits)
	assert.Zero(t, m.Active())
}
