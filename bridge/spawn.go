package bridge

import (
	"fmt"
	"os"
	"os/exec"
)

// SpawnFunc creates a ready Bridge over a fresh worker process. The
// Holder calls it lazily, at most once per reset cycle.
type SpawnFunc func() (*Bridge, error)

// Spawner returns a SpawnFunc that starts command with the given
// arguments and wires stdin/stdout as the protocol pipes. The worker's
// stderr passes straight through to the host's stderr: stdout belongs to
// the protocol exclusively, and worker debug chatter stays visible
// without being consumed here.
func Spawner(command string, args []string, dir string, extraEnv []string) SpawnFunc {
	return func() (*Bridge, error) {
		cmd := exec.Command(command, args...)
		cmd.Dir = dir
		if len(extraEnv) > 0 {
			cmd.Env = append(os.Environ(), extraEnv...)
		}
		cmd.Stderr = os.Stderr

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("creating stdin pipe: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("creating stdout pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("starting worker %s: %w", command, err)
		}
		log.Infof("worker started: %s (pid %d)", command, cmd.Process.Pid)

		b := New(NewChannel(stdin, stdout))
		b.cmd = cmd
		return b, nil
	}
}
