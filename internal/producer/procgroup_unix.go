//go:build !windows

package producer

import (
	"os/exec"
	"syscall"
)

// setProcGroup detaches the producer from our terminal's process group so a
// Ctrl+C aimed at the receiver does not reach it.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func killProcGroup(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return cmd.Process.Kill()
	}
	return nil
}
