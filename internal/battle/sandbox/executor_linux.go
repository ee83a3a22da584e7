//go:build linux

package sandbox

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr places the child in its own process group so the whole tree
// can be killed at once.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGKILL)
	_ = unix.Kill(pid, unix.SIGKILL)
}
