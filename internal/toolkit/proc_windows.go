//go:build windows

package toolkit

import "os/exec"

// Process groups and SIGTERM do not exist on Windows; the runner falls
// back to killing the direct child. The wireless tooling is Unix-only
// anyway, this keeps the package compiling for cross builds.
func setProcGroup(cmd *exec.Cmd) {}

func signalTerm(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
