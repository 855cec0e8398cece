// Package spawn provides the OS abstraction the Master uses to launch unit
// processes. Grounded on spec.md's design note replacing shell popen with
// one method: spawnDetached(argv) -> void; modeled in the teacher's style of
// isolating OS calls behind a narrow interface (cf. internal/logger's
// io.Writer abstraction over os.File).
package spawn

import (
	"os"
	"os/exec"
)

// Spawner launches a detached child process and never reads its output.
type Spawner interface {
	SpawnDetached(argv []string) error
}

// ExecSpawner launches real OS processes via os/exec, with stdout/stderr
// discarded per spec.md §4.6 ("detached, stdout/stderr closed").
type ExecSpawner struct {
	// Binary is the path to this program's own executable, used as argv[0]
	// when argv doesn't supply one.
	Binary string
}

// NewExecSpawner resolves the running binary's own path for re-exec.
func NewExecSpawner() (*ExecSpawner, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return &ExecSpawner{Binary: self}, nil
}

// SpawnDetached starts argv as a background child, closing stdio and
// detaching from the parent's process group so the master's exit doesn't
// signal its units.
func (e *ExecSpawner) SpawnDetached(argv []string) error {
	if len(argv) == 0 {
		argv = []string{e.Binary}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = detachAttr()

	if err := cmd.Start(); err != nil {
		return err
	}
	// Fire-and-forget: release so the child isn't reaped as a zombie by
	// holding onto *os.Process without ever calling Wait from us.
	return cmd.Process.Release()
}

var _ Spawner = (*ExecSpawner)(nil)
