package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultStderrMaxBytes int64 = 16 * 1024
	inputFileName               = "input.txt"
)

// Config controls process executor behavior.
type Config struct {
	// WorkRoot is the host directory under which per-call workspaces are
	// created. Each workspace is removed on every exit path.
	WorkRoot string
	// HelperPath optionally names the sandbox-init binary that applies
	// rlimits and seccomp before exec'ing the program (linux only). When
	// empty the command runs directly, which is suitable for tests.
	HelperPath string
	// EnableSeccomp asks the helper to install its syscall filter.
	EnableSeccomp bool
	// MemoryMB bounds the program's address space via the helper. Zero
	// means the helper default.
	MemoryMB int64
	// StderrMaxBytes caps captured diagnostics. Zero means the default.
	StderrMaxBytes int64
}

// ProcessExecutor runs each request in a fresh subprocess with a wall-clock
// deadline and an output cap. It implements Executor.
type ProcessExecutor struct {
	cfg      Config
	profiles ProfileRepository

	mu     sync.Mutex
	active map[string]struct{}
}

// NewProcessExecutor creates a process-based executor.
func NewProcessExecutor(cfg Config, profiles ProfileRepository) (*ProcessExecutor, error) {
	if profiles == nil {
		return nil, fmt.Errorf("profile repository is required")
	}
	if cfg.WorkRoot == "" {
		return nil, fmt.Errorf("work root is required")
	}
	if cfg.StderrMaxBytes <= 0 {
		cfg.StderrMaxBytes = defaultStderrMaxBytes
	}
	if err := os.MkdirAll(cfg.WorkRoot, 0755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}
	e := &ProcessExecutor{cfg: cfg, profiles: profiles, active: make(map[string]struct{})}
	e.sweepWorkRoot()
	return e, nil
}

// Execute runs one request to completion. The returned error is reserved for
// sandbox-internal faults; everything attributable to the submitted program
// is reported through the Result.
func (e *ProcessExecutor) Execute(ctx context.Context, req Request, limits Limits) (Result, error) {
	if limits.WallTime <= 0 {
		return Result{}, fmt.Errorf("wall time limit is required")
	}
	if limits.OutputBytes <= 0 {
		return Result{}, fmt.Errorf("output limit is required")
	}

	profile, err := e.profiles.GetProfile(ctx, req.Language)
	if err != nil {
		return Result{}, err
	}

	workDir, err := os.MkdirTemp(e.cfg.WorkRoot, "exec-")
	if err != nil {
		return Result{}, fmt.Errorf("create workspace: %w", err)
	}
	e.trackWorkspace(workDir)
	defer func() {
		_ = os.RemoveAll(workDir)
		e.releaseWorkspace(workDir)
		e.sweepWorkRoot()
	}()

	sourcePath := filepath.Join(workDir, profile.SourceFileName)
	if err := os.WriteFile(sourcePath, []byte(req.Code), 0644); err != nil {
		return Result{}, fmt.Errorf("write source: %w", err)
	}
	inputPath := filepath.Join(workDir, inputFileName)
	if err := os.WriteFile(inputPath, []byte(req.Input), 0644); err != nil {
		return Result{}, fmt.Errorf("write input: %w", err)
	}

	if len(profile.CheckCommand) > 0 {
		check, err := e.runProcess(ctx, workDir, expandCommand(profile.CheckCommand, sourcePath), profile.Env, "", limits)
		if err != nil {
			return Result{}, err
		}
		if check.timedOut {
			return failResult(ReasonTimeout, "syntax check exceeded the time limit"), nil
		}
		if check.exitCode != 0 {
			return failResult(ReasonCompile, check.stderr.String()), nil
		}
	}

	run, err := e.runProcess(ctx, workDir, expandCommand(profile.RunCommand, sourcePath), profile.Env, inputPath, limits)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Stdout:    run.stdout.String(),
		Stderr:    run.stderr.String(),
		Truncated: run.stdout.truncated,
		TimeMs:    run.duration.Milliseconds(),
		ExitCode:  run.exitCode,
	}
	switch {
	case run.timedOut:
		res.Reason = ReasonTimeout
		res.Diagnostic = fmt.Sprintf("wall clock limit of %s exceeded", limits.WallTime)
	case run.stdout.truncated:
		res.Reason = ReasonOutputTooLarge
		res.Diagnostic = fmt.Sprintf("output exceeded the limit of %d bytes", limits.OutputBytes)
	case run.exitCode != 0:
		res.Reason = ReasonRuntime
		res.Diagnostic = strings.TrimSpace(run.stderr.String())
	}
	return res, nil
}

func failResult(reason FailReason, diagnostic string) Result {
	return Result{Reason: reason, Diagnostic: strings.TrimSpace(diagnostic)}
}

func (e *ProcessExecutor) trackWorkspace(workDir string) {
	e.mu.Lock()
	e.active[filepath.Base(workDir)] = struct{}{}
	e.mu.Unlock()
}

func (e *ProcessExecutor) releaseWorkspace(workDir string) {
	e.mu.Lock()
	delete(e.active, filepath.Base(workDir))
	e.mu.Unlock()
}

// sweepWorkRoot removes everything under the work root that does not belong
// to an in-flight execution. Submitted code can escape its workspace with a
// relative path, and whatever it drops beside the workspace must not be
// visible to any later call.
func (e *ProcessExecutor) sweepWorkRoot() {
	entries, err := os.ReadDir(e.cfg.WorkRoot)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range entries {
		if _, ok := e.active[entry.Name()]; ok {
			continue
		}
		_ = os.RemoveAll(filepath.Join(e.cfg.WorkRoot, entry.Name()))
	}
}

type procOutcome struct {
	stdout   *cappedBuffer
	stderr   *cappedBuffer
	exitCode int
	timedOut bool
	duration time.Duration
}

// runProcess starts one child, waits for it under the wall-clock limit and
// kills the whole process group on timeout so no grandchildren survive.
func (e *ProcessExecutor) runProcess(ctx context.Context, workDir string, argv, env []string, stdinPath string, limits Limits) (procOutcome, error) {
	if len(argv) == 0 {
		return procOutcome{}, fmt.Errorf("empty command")
	}

	stdout := &cappedBuffer{limit: limits.OutputBytes}
	stderr := &cappedBuffer{limit: e.cfg.StderrMaxBytes}

	var cmd *exec.Cmd
	if e.cfg.HelperPath != "" {
		initReq := InitRequest{
			Cmd:           argv,
			WorkDir:       workDir,
			Env:           env,
			StdinPath:     stdinPath,
			EnableSeccomp: e.cfg.EnableSeccomp,
			Limits: InitLimits{
				CPUSeconds:  int64(limits.WallTime/time.Second) + 1,
				OutputBytes: limits.OutputBytes,
				MemoryMB:    e.cfg.MemoryMB,
			},
		}
		payload, err := json.Marshal(initReq)
		if err != nil {
			return procOutcome{}, fmt.Errorf("encode init request: %w", err)
		}
		cmd = exec.CommandContext(ctx, e.cfg.HelperPath)
		cmd.Stdin = bytes.NewReader(payload)
	} else {
		cmd = exec.CommandContext(ctx, argv[0], argv[1:]...)
		if stdinPath != "" {
			stdin, err := os.Open(stdinPath)
			if err != nil {
				return procOutcome{}, fmt.Errorf("open stdin: %w", err)
			}
			defer stdin.Close()
			cmd.Stdin = stdin
		}
		cmd.Dir = workDir
		cmd.Env = env
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = sysProcAttr()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return procOutcome{}, fmt.Errorf("start process: %w", err)
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		select {
		case <-time.After(limits.WallTime):
			timedOut.Store(true)
			killProcessGroup(cmd.Process.Pid)
		case <-ctx.Done():
			killProcessGroup(cmd.Process.Pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	duration := time.Since(start)

	outcome := procOutcome{
		stdout:   stdout,
		stderr:   stderr,
		timedOut: timedOut.Load(),
		duration: duration,
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			outcome.exitCode = exitErr.ExitCode()
			if outcome.exitCode < 0 && !outcome.timedOut {
				// Killed by a signal we did not send.
				outcome.exitCode = 1
			}
			return outcome, nil
		}
		return procOutcome{}, fmt.Errorf("wait process: %w", waitErr)
	}
	return outcome, nil
}

// cappedBuffer accepts all writes but retains at most limit bytes, flagging
// truncation instead of failing the writer.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remain := b.limit - int64(b.buf.Len())
	if remain <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > remain {
		b.buf.Write(p[:remain])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
