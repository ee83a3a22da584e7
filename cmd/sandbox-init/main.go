//go:build linux

// sandbox-init is the in-sandbox bootstrap. It reads an InitRequest from
// stdin, applies resource limits and an optional seccomp filter, redirects
// stdin to the test input and execs the target command. It must stay a
// separate binary so the limits apply to the submitted program, not to the
// judging service.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"

	"codeverse/internal/battle/sandbox"
)

const (
	defaultMemoryMB int64 = 256
	defaultMaxProcs int64 = 64
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run() error {
	req, err := decodeRequest(os.Stdin)
	if err != nil {
		return err
	}
	if len(req.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if req.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}

	if err := os.Chdir(req.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}
	if err := applyRlimits(req.Limits); err != nil {
		return err
	}
	if err := redirectStdin(req.StdinPath); err != nil {
		return err
	}
	if req.EnableSeccomp {
		if err := applySeccomp(); err != nil {
			return err
		}
	}

	env := buildEnv(req.Env)
	os.Clearenv()
	for _, kv := range env {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if err := os.Setenv(parts[0], parts[1]); err != nil {
			return fmt.Errorf("set env: %w", err)
		}
	}

	cmdPath, err := exec.LookPath(req.Cmd[0])
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}
	return unix.Exec(cmdPath, req.Cmd, env)
}

func decodeRequest(r io.Reader) (sandbox.InitRequest, error) {
	var req sandbox.InitRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return sandbox.InitRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func applyRlimits(limits sandbox.InitLimits) error {
	if limits.CPUSeconds > 0 {
		seconds := uint64(limits.CPUSeconds)
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: seconds, Max: seconds}); err != nil {
			return fmt.Errorf("set rlimit cpu: %w", err)
		}
	}
	if limits.OutputBytes > 0 {
		bytes := uint64(limits.OutputBytes)
		if err := unix.Setrlimit(unix.RLIMIT_FSIZE, &unix.Rlimit{Cur: bytes, Max: bytes}); err != nil {
			return fmt.Errorf("set rlimit fsize: %w", err)
		}
	}
	memoryMB := limits.MemoryMB
	if memoryMB <= 0 {
		memoryMB = defaultMemoryMB
	}
	memBytes := uint64(memoryMB) * 1024 * 1024
	if err := unix.Setrlimit(unix.RLIMIT_AS, &unix.Rlimit{Cur: memBytes, Max: memBytes}); err != nil {
		return fmt.Errorf("set rlimit as: %w", err)
	}
	maxProcs := limits.MaxProcs
	if maxProcs <= 0 {
		maxProcs = defaultMaxProcs
	}
	if err := unix.Setrlimit(unix.RLIMIT_NPROC, &unix.Rlimit{Cur: uint64(maxProcs), Max: uint64(maxProcs)}); err != nil {
		return fmt.Errorf("set rlimit nproc: %w", err)
	}
	return nil
}

func redirectStdin(stdinPath string) error {
	if stdinPath == "" {
		stdinPath = "/dev/null"
	}
	file, err := os.Open(stdinPath)
	if err != nil {
		return fmt.Errorf("open stdin: %w", err)
	}
	if err := unix.Dup2(int(file.Fd()), int(os.Stdin.Fd())); err != nil {
		return fmt.Errorf("dup stdin: %w", err)
	}
	return file.Close()
}

func buildEnv(env []string) []string {
	if len(env) > 0 {
		return env
	}
	return []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
}

// applySeccomp blocks the syscalls an interpreted solution has no business
// making. The filter is allow-by-default with an explicit deny list; a full
// allow list would have to track every interpreter runtime.
func applySeccomp() error {
	filter, err := seccomp.NewFilter(seccomp.ActAllow)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	denied := []string{
		"mount", "umount2", "pivot_root", "chroot",
		"reboot", "kexec_load", "init_module", "delete_module",
		"ptrace", "process_vm_readv", "process_vm_writev",
		"setuid", "setgid", "setreuid", "setregid",
	}
	for _, name := range denied {
		call, err := seccomp.GetSyscallFromName(name)
		if err != nil {
			continue
		}
		if err := filter.AddRuleExact(call, seccomp.ActKillProcess); err != nil {
			return fmt.Errorf("add seccomp rule %s: %w", name, err)
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}
