package console

import (
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/schovi/nodemux/internal/session"
)

type fakeProcess struct {
	name       string
	reads      [][]byte
	eof        bool
	lines      []string
	chars      []byte
	interrupts int
	noPrompt   bool
}

func (p *fakeProcess) Name() string { return p.name }
func (p *fakeProcess) Fd() int      { return -1 }

func (p *fakeProcess) ReadAvailable(time.Duration) ([]byte, error) {
	if len(p.reads) == 0 {
		if p.eof {
			return nil, io.EOF
		}
		return nil, nil
	}
	data := p.reads[0]
	p.reads = p.reads[1:]
	return data, nil
}

func (p *fakeProcess) WriteLine(text string) error {
	p.lines = append(p.lines, text)
	return nil
}

func (p *fakeProcess) WriteChar(c byte) error {
	p.chars = append(p.chars, c)
	return nil
}

// Interrupt behaves like a shell: the prompt comes back on the next read.
func (p *fakeProcess) Interrupt() error {
	p.interrupts++
	if !p.noPrompt {
		p.reads = append(p.reads, []byte("\r\n"+p.name+"# "))
	}
	return nil
}

type countingObserver map[string]int

func (o countingObserver) ObserveInterrupt(node string) { o[node]++ }

type testNet struct {
	reg   *session.Registry
	procs map[string]*fakeProcess
}

func (n *testNet) session(t *testing.T, id string) *session.Session {
	t.Helper()
	s, ok := n.reg.Get(id)
	require.True(t, ok, id)
	return s
}

// emit makes node id print data and lets its session read it.
func (n *testNet) emit(t *testing.T, id, data string) {
	t.Helper()
	p := n.procs[id]
	p.reads = append(p.reads, []byte(data))
	_, err := n.session(t, id).HandleReadable(0)
	require.NoError(t, err)
}

func newTestNet(t *testing.T) *testNet {
	t.Helper()
	n := &testNet{procs: map[string]*fakeProcess{}}
	mk := func(ids ...string) []*session.Session {
		var out []*session.Session
		for _, id := range ids {
			p := &fakeProcess{name: id}
			n.procs[id] = p
			out = append(out, session.New(p))
		}
		return out
	}
	reg, err := session.NewRegistry([]session.Group{
		{Name: "hosts", Sessions: mk("h1", "h2")},
		{Name: "switches", Sessions: mk("s1")},
	}, zerolog.Nop())
	require.NoError(t, err)
	n.reg = reg
	return n
}
