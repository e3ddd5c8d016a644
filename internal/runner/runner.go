// Package runner starts provisioned instances as independent background
// processes. The contract is deliberately minimal: launch, record the pid
// and log path, forget. There is no supervision channel into the child;
// callers that need a stricter model can substitute another Launcher.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// OwnerEnvVar carries the owning account id into the child process.
const OwnerEnvVar = "MAKER_OWNER_ID"

// LaunchSpec describes one background process start.
type LaunchSpec struct {
	WorkDir    string
	Entrypoint string // absolute path of the file to run
	RunCommand string // optional command hint, e.g. "python3 main.py"
	LogPath    string // stdout/stderr are appended here
	OwnerID    int64
}

// Launcher starts a background process and returns its pid.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (int, error)
}

// ExecLauncher launches via os/exec on the local host.
type ExecLauncher struct{}

func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{}
}

func (l *ExecLauncher) Launch(ctx context.Context, spec LaunchSpec) (int, error) {
	logFile, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	argv := commandFor(spec)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.WorkDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), OwnerEnvVar+"="+strconv.FormatInt(spec.OwnerID, 10))

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start process: %w", err)
	}

	pid := cmd.Process.Pid

	// Detach: the child outlives us and nobody waits on it here. Reaping
	// a long-running worker is the OS's problem, not the bot's.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release process: %w", err)
	}

	return pid, nil
}

// commandFor picks the argv. The template's run command hint wins when set;
// otherwise the entrypoint is handed to python3, matching the corpus of
// templates this marketplace actually ships.
func commandFor(spec LaunchSpec) []string {
	if cmd := strings.TrimSpace(spec.RunCommand); cmd != "" {
		fields := strings.Fields(cmd)
		// Hints like "python3 main.py" name a file relative to the
		// workdir; the entrypoint we resolved is authoritative.
		if len(fields) > 1 {
			return append(fields[:len(fields)-1:len(fields)-1], spec.Entrypoint)
		}
		return []string{fields[0], spec.Entrypoint}
	}
	return []string{"python3", spec.Entrypoint}
}
