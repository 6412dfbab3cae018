// Package testutil provides test doubles for the engine: fake external
// tools written as executable shell stubs, so registry, runner, and
// module tests run hermetically on hosts with no recon tooling
// installed.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// FakeTool writes an executable stub named name into dir and returns its
// path. The script body runs under /bin/sh; stubs echo canned output,
// sleep, or exit with a chosen status to simulate real tools.
func FakeTool(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	body := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("writing fake tool %s: %v", name, err)
	}
	return path
}

// ToolDir creates a temporary directory, installs the given name→script
// stubs, and prepends it to PATH for the duration of the test, so
// exec.LookPath resolves the stubs instead of real tools.
func ToolDir(t *testing.T, scripts map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, script := range scripts {
		FakeTool(t, dir, name, script)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return dir
}
