package instance

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"syscall"
	"time"

	"mcpbridge/internal/api"
	"mcpbridge/internal/template"
	"mcpbridge/pkg/logging"
)

// process wraps one spawned backend child. It owns the exec.Cmd and the
// stdio pipes handed to the protocol factory. Wait is called exactly once,
// from the goroutine started in startProcess; everyone else observes the
// exit through the done channel.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	done    chan struct{}
	waitErr error
}

// startProcess spawns the resolved command with the definition's environment,
// working directory and optional credential drop, and begins watching for
// its exit.
func startProcess(resolved *template.ResolvedConfig, runAs *api.ProcessUser) (*process, error) {
	cmd := exec.Command(resolved.Command, resolved.Args...)

	cmd.Env = os.Environ()
	keys := make([]string, 0, len(resolved.Env))
	for k := range resolved.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, resolved.Env[k]))
	}

	if resolved.WorkingDir != "" {
		cmd.Dir = resolved.WorkingDir
	}

	if runAs != nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Credential: &syscall.Credential{
				Uid: runAs.UID,
				Gid: runAs.GID,
			},
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", resolved.Command, err)
	}

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan struct{}),
	}

	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// pid returns the OS process id.
func (p *process) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// exited reports whether the child has exited.
func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// waitError returns the exit error once the child has exited. Only valid
// after done is closed.
func (p *process) waitError() error {
	return p.waitErr
}

// terminate stops the child: SIGTERM, wait up to grace, then SIGKILL. It
// returns once the child has been reaped.
func (p *process) terminate(grace time.Duration) {
	if p.exited() {
		return
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logging.Debug("Instance", "SIGTERM to pid %d failed: %v", p.pid(), err)
	}

	select {
	case <-p.done:
		return
	case <-time.After(grace):
	}

	logging.Warn("Instance", "Process %d did not exit within %s, sending SIGKILL", p.pid(), grace)
	if err := p.cmd.Process.Kill(); err != nil {
		logging.Debug("Instance", "SIGKILL to pid %d failed: %v", p.pid(), err)
	}
	<-p.done
}

// kill force-terminates the child without a grace period.
func (p *process) kill() {
	if p.exited() {
		return
	}
	if err := p.cmd.Process.Kill(); err != nil {
		logging.Debug("Instance", "SIGKILL to pid %d failed: %v", p.pid(), err)
	}
	<-p.done
}
