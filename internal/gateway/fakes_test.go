// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/seedlink/internal/transcode"
)

// behavior scripts what a fake transcoder does with its input.
type behavior int

const (
	// echoes "transcoded:" plus the source, then exits cleanly
	behaviorEcho behavior = iota
	// writes one chunk and runs until terminated
	behaviorHold
	// exits non-zero without output
	behaviorFail
	// never writes and runs until terminated
	behaviorSilent
)

const heldChunk = "first-chunk"

type fakeRunner struct {
	behavior behavior

	mu     sync.Mutex
	procs  []*fakeProc
	starts atomic.Int32
}

func (f *fakeRunner) Start(ctx context.Context, src io.Reader, _ transcode.Profile) (transcode.Process, error) {
	pr, pw := io.Pipe()
	p := &fakeProc{pr: pr, pw: pw, exited: make(chan struct{})}

	f.starts.Add(1)
	f.mu.Lock()
	f.procs = append(f.procs, p)
	f.mu.Unlock()

	go p.run(f.behavior, src)
	context.AfterFunc(ctx, func() { _ = p.Terminate() })
	return p, nil
}

func (f *fakeRunner) Starts() int { return int(f.starts.Load()) }

func (f *fakeRunner) Procs() []*fakeProc {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeProc(nil), f.procs...)
}

type fakeProc struct {
	pr     *io.PipeReader
	pw     *io.PipeWriter
	exited chan struct{}
	result error

	exitOnce   sync.Once
	termOnce   sync.Once
	terminated atomic.Bool
}

func (p *fakeProc) run(b behavior, src io.Reader) {
	switch b {
	case behaviorEcho:
		data, _ := io.ReadAll(src)
		_, _ = p.pw.Write(append([]byte("transcoded:"), data...))
		_ = p.pw.Close()
		p.exit(nil)
	case behaviorHold:
		_, _ = p.pw.Write([]byte(heldChunk))
		<-p.exited
	case behaviorFail:
		_ = p.pw.Close()
		p.exit(&transcode.ExitError{Code: 1, Class: "invalid_input"})
	case behaviorSilent:
		<-p.exited
	}
}

func (p *fakeProc) exit(err error) {
	p.exitOnce.Do(func() {
		p.result = err
		close(p.exited)
	})
}

func (p *fakeProc) Stdout() io.Reader { return p.pr }

func (p *fakeProc) Wait() error {
	<-p.exited
	return p.result
}

func (p *fakeProc) Terminate() error {
	p.termOnce.Do(func() {
		select {
		case <-p.exited:
		default:
			p.terminated.Store(true)
		}
		p.exit(transcode.ErrTerminated)
		_ = p.pr.Close()
		_ = p.pw.CloseWithError(io.ErrClosedPipe)
	})
	return nil
}

func (p *fakeProc) Diagnostics() []string { return nil }

func (p *fakeProc) Terminated() bool { return p.terminated.Load() }
