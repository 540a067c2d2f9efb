// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"io"
	"sync/atomic"
	"time"
)

// watchdog calls fire once if no progress was reported for idle, or when
// max elapsed. A zero duration disables that bound.
type watchdog struct {
	kick  chan struct{}
	stopc chan struct{}
	done  chan struct{}
	fired atomic.Bool
}

func startWatchdog(idle, maxDur time.Duration, fire func()) *watchdog {
	wd := &watchdog{
		kick:  make(chan struct{}, 1),
		stopc: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go wd.run(idle, maxDur, fire)
	return wd
}

func (wd *watchdog) run(idle, maxDur time.Duration, fire func()) {
	defer close(wd.done)

	var idleC, maxC <-chan time.Time
	var idleT *time.Timer
	if idle > 0 {
		idleT = time.NewTimer(idle)
		defer idleT.Stop()
		idleC = idleT.C
	}
	if maxDur > 0 {
		maxT := time.NewTimer(maxDur)
		defer maxT.Stop()
		maxC = maxT.C
	}

	for {
		select {
		case <-wd.kick:
			if idleT != nil {
				idleT.Reset(idle)
			}
		case <-idleC:
			wd.fired.Store(true)
			fire()
			return
		case <-maxC:
			wd.fired.Store(true)
			fire()
			return
		case <-wd.stopc:
			return
		}
	}
}

// touch reports progress. A nil watchdog ignores it.
func (wd *watchdog) touch() {
	if wd == nil {
		return
	}
	select {
	case wd.kick <- struct{}{}:
	default:
	}
}

// stop ends the watchdog and waits for a running fire to return.
func (wd *watchdog) stop() {
	close(wd.stopc)
	<-wd.done
}

func (wd *watchdog) expired() bool { return wd != nil && wd.fired.Load() }

// progressReader touches wd whenever a read returns data.
type progressReader struct {
	r  io.Reader
	wd *watchdog
}

func (p progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.wd.touch()
	}
	return n, err
}

type progressSeeker struct {
	io.Reader
	io.Seeker
}
