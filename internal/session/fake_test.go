package session

import (
	"io"
	"time"
)

type readResult struct {
	data []byte
	err  error
}

// fakeProcess replays scripted reads and records writes.
type fakeProcess struct {
	name       string
	reads      []readResult
	lines      []string
	chars      []byte
	interrupts int
	writeErr   error
	onRead     func()
}

func newFakeProcess(name string, chunks ...string) *fakeProcess {
	p := &fakeProcess{name: name}
	for _, c := range chunks {
		p.reads = append(p.reads, readResult{data: []byte(c)})
	}
	return p
}

func (p *fakeProcess) queue(chunks ...string) {
	for _, c := range chunks {
		p.reads = append(p.reads, readResult{data: []byte(c)})
	}
}

func (p *fakeProcess) queueEOF() {
	p.reads = append(p.reads, readResult{err: io.EOF})
}

func (p *fakeProcess) Name() string { return p.name }
func (p *fakeProcess) Fd() int      { return -1 }

func (p *fakeProcess) ReadAvailable(time.Duration) ([]byte, error) {
	if p.onRead != nil {
		p.onRead()
	}
	if len(p.reads) == 0 {
		return nil, nil
	}
	r := p.reads[0]
	p.reads = p.reads[1:]
	return r.data, r.err
}

func (p *fakeProcess) WriteLine(text string) error {
	if p.writeErr != nil {
		return p.writeErr
	}
	p.lines = append(p.lines, text)
	return nil
}

func (p *fakeProcess) WriteChar(c byte) error {
	if p.writeErr != nil {
		return p.writeErr
	}
	p.chars = append(p.chars, c)
	return nil
}

func (p *fakeProcess) Interrupt() error {
	p.interrupts++
	return nil
}

type recordingListener struct {
	output      []string
	transitions []State
}

func (l *recordingListener) OnOutput(_ *Session, chunk []byte) {
	l.output = append(l.output, string(chunk))
}

func (l *recordingListener) OnStateChange(_ *Session, _, to State) {
	l.transitions = append(l.transitions, to)
}
