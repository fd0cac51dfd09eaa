// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Shell runs one rendered step command in the given working directory
// and reports the exit code. Non-exit failures (spawn errors, context
// cancellation, signals) come back as the error.
type Shell interface {
	Run(ctx context.Context, dir, command string) (int, error)
}

// HostShell executes commands via sh -c on the host. The shell is
// resolved via PATH rather than hardcoded to /bin/sh, which is also
// correct on hosts where /bin/sh is a different shell than the
// environment expects.
//
// The command runs in its own process group so that cancellation
// reaches the shell and everything it spawned. Release steps start
// git clones and gsutil transfers; without Setpgid only the shell
// would receive the signal and the children would keep running with
// the inherited stdout and stderr open.
type HostShell struct {
	// GracePeriod is the wait between SIGTERM and SIGKILL on
	// cancellation. Zero kills immediately. Steps that upload
	// artifacts deserve a grace period so a transfer can abort
	// cleanly instead of leaving a half-written object.
	GracePeriod time.Duration

	// Stdout and Stderr receive the command's output. Nil means the
	// process's own.
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements Shell.
func (h *HostShell) Run(ctx context.Context, dir, command string) (int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Stdout = h.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = h.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	gracePeriod := h.GracePeriod
	if gracePeriod > 0 {
		cmd.Cancel = func() error {
			processGroupID := -cmd.Process.Pid
			if err := syscall.Kill(processGroupID, syscall.SIGTERM); err != nil {
				// The group is already gone or unsignalable; force it.
				return syscall.Kill(processGroupID, syscall.SIGKILL)
			}
			go func() {
				time.Sleep(gracePeriod)
				// ESRCH from an exited group is harmless.
				_ = syscall.Kill(processGroupID, syscall.SIGKILL)
			}()
			return nil
		}
	} else {
		cmd.Cancel = func() error {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	}

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode(), nil
	}
	return -1, err
}
