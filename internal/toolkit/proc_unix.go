//go:build unix

package toolkit

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcGroup places the child in its own process group so the whole
// tool tree can be signalled at once. Recon tools fork helpers freely;
// killing only the direct child leaves orphans running.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalTerm(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGTERM); err != nil {
		_ = cmd.Process.Signal(unix.SIGTERM)
	}
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}
