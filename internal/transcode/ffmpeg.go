// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/seedlink/internal/log"
	"github.com/ManuGH/seedlink/internal/procgroup"
)

// Runner starts transcoder processes.
type Runner interface {
	// Start spawns a process reading src and producing the profile's output
	// on Stdout. Cancelling ctx terminates the process.
	Start(ctx context.Context, src io.Reader, p Profile) (Process, error)
}

// Process is one running transcoder.
type Process interface {
	Stdout() io.Reader
	// Wait blocks until the process exited. It returns nil on a clean exit,
	// ErrTerminated after Terminate, or an *ExitError.
	Wait() error
	// Terminate stops the process group and closes Stdout. It is safe to
	// call repeatedly and from any goroutine.
	Terminate() error
	// Diagnostics returns the last stderr lines.
	Diagnostics() []string
}

const (
	defaultKillGrace   = 3 * time.Second
	defaultKillTimeout = 5 * time.Second
	stderrLines        = 50
	stderrDrainTimeout = 2 * time.Second
)

// FFmpeg is the Runner backed by an ffmpeg binary.
type FFmpeg struct {
	BinaryPath  string
	KillGrace   time.Duration
	KillTimeout time.Duration
	Logger      zerolog.Logger
}

// Start implements Runner.
func (f *FFmpeg) Start(ctx context.Context, src io.Reader, p Profile) (Process, error) {
	bin := f.BinaryPath
	if bin == "" {
		bin = "ffmpeg"
	}

	// The process lifetime is bound to ctx by AfterFunc below so it always
	// goes through the group termination path.
	cmd := exec.Command(bin, p.Args()...)
	procgroup.Set(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrTranscodeFailed, err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrTranscodeFailed, err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrTranscodeFailed, err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		for _, fd := range []*os.File{stdoutR, stdoutW, stderrR, stderrW} {
			_ = fd.Close()
		}
		return nil, fmt.Errorf("%w: start %s: %v", ErrTranscodeFailed, bin, err)
	}
	// The child holds its own copies now.
	_ = stdoutW.Close()
	_ = stderrW.Close()

	grace, timeout := f.KillGrace, f.KillTimeout
	if grace <= 0 {
		grace = defaultKillGrace
	}
	if timeout <= 0 {
		timeout = defaultKillTimeout
	}

	proc := &process{
		cmd:         cmd,
		stdout:      stdoutR,
		ring:        NewRingBuffer(stderrLines),
		exited:      make(chan struct{}),
		done:        make(chan struct{}),
		scanned:     make(chan struct{}),
		grace:       grace,
		killTimeout: timeout,
		logger: f.Logger.With().
			Str(log.FieldComponent, "transcode").
			Int(log.FieldPID, cmd.Process.Pid).
			Str(log.FieldProfile, p.Name).
			Logger(),
	}
	proc.logger.Debug().Str("binary", bin).Msg("ffmpeg started")

	go proc.feed(stdin, src)
	go proc.scan(stderrR)
	go proc.wait(stderrR)
	context.AfterFunc(ctx, func() { _ = proc.Terminate() })
	return proc, nil
}

type process struct {
	cmd         *exec.Cmd
	stdout      *os.File
	ring        *RingBuffer
	grace       time.Duration
	killTimeout time.Duration
	logger      zerolog.Logger

	exited  chan struct{} // closed once cmd.Wait returned
	done    chan struct{} // closed once result is set
	scanned chan struct{}
	result  error

	terminated atomic.Bool
	termOnce   sync.Once
	termErr    error
}

func (p *process) Stdout() io.Reader { return p.stdout }

func (p *process) Diagnostics() []string { return p.ring.Lines() }

func (p *process) Wait() error {
	<-p.done
	return p.result
}

func (p *process) Terminate() error {
	p.termOnce.Do(func() {
		select {
		case <-p.exited:
		default:
			p.terminated.Store(true)
			p.termErr = procgroup.Terminate(p.cmd, p.exited, p.grace, p.killTimeout)
		}
		_ = p.stdout.Close()
	})
	return p.termErr
}

// feed copies the source into ffmpeg's stdin. A write error only means the
// process went away; Wait reports why.
func (p *process) feed(stdin io.WriteCloser, src io.Reader) {
	if _, err := io.Copy(stdin, src); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Debug().Err(err).Msg("stdin feed stopped")
	}
	_ = stdin.Close()
}

func (p *process) scan(stderr *os.File) {
	defer close(p.scanned)
	sc := bufio.NewScanner(stderr)
	for sc.Scan() {
		line := sc.Text()
		p.ring.Add(line)
		p.logger.Debug().Str("stderr", line).Msg("ffmpeg")
	}
}

func (p *process) wait(stderr *os.File) {
	waitErr := p.cmd.Wait()
	close(p.exited)

	// A grandchild may keep stderr open; do not wait for it forever.
	select {
	case <-p.scanned:
	case <-time.After(stderrDrainTimeout):
		_ = stderr.Close()
		<-p.scanned
	}
	_ = stderr.Close()

	switch {
	case waitErr == nil:
		p.result = nil
	case p.terminated.Load():
		p.result = ErrTerminated
	default:
		lines := p.ring.Lines()
		exitErr := &ExitError{Code: -1, Class: Classify(lines), Diagnostics: lines}
		var ee *exec.ExitError
		if errors.As(waitErr, &ee) {
			exitErr.Code = ee.ExitCode()
		}
		p.result = exitErr
		p.logger.Warn().Err(exitErr).Str("class", exitErr.Class).Msg("ffmpeg failed")
	}
	close(p.done)
}
