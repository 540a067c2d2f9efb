// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts child processes in their own process group and
// tears the whole group down: SIGTERM, a grace period, then SIGKILL.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/seedlink/internal/log"
	"github.com/ManuGH/seedlink/internal/metrics"
)

var ErrKillFailed = errors.New("kill operation failed")

// Terminate stops the process group of cmd. exited must be closed by the
// goroutine that owns cmd.Wait once it returns; Terminate never waits on
// the process itself. It returns ErrKillFailed if the group survives
// SIGKILL for longer than timeout.
func Terminate(cmd *exec.Cmd, exited <-chan struct{}, grace, timeout time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	select {
	case <-exited:
		return nil
	default:
	}

	logger := log.WithComponent("procgroup").With().Int(log.FieldPID, cmd.Process.Pid).Logger()

	logger.Debug().Msg("sending SIGTERM to process group")
	if err := Kill(cmd, syscall.SIGTERM); err != nil {
		logger.Warn().Err(err).Msg("SIGTERM failed")
	}

	graceTimer := time.NewTimer(grace)
	defer graceTimer.Stop()
	select {
	case <-exited:
		metrics.IncProcTerminate("term", "exited")
		return nil
	case <-graceTimer.C:
	}

	logger.Warn().Dur("grace", grace).Msg("SIGTERM grace period exceeded, sending SIGKILL to process group")
	if err := Kill(cmd, syscall.SIGKILL); err != nil {
		logger.Warn().Err(err).Msg("SIGKILL failed")
	}

	killTimer := time.NewTimer(timeout)
	defer killTimer.Stop()
	select {
	case <-exited:
		metrics.IncProcTerminate("kill", "exited")
		return nil
	case <-killTimer.C:
		metrics.IncProcTerminate("kill", "timeout")
		logger.Error().Msg("process group still alive after SIGKILL")
		return ErrKillFailed
	}
}
