package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrWorkerNotFound means the worker executable could not be located.
var ErrWorkerNotFound = errors.New("worker executable not found")

const stopTimeout = 5 * time.Second

// Process is a Channel backed by a child process speaking the protocol on
// its stdin/stdout. Its stderr is forwarded into the log.
type Process struct {
	*Conn
	cmd *exec.Cmd
	log *zap.SugaredLogger

	// exited is closed once the process has been reaped and waitErr is set.
	exited   chan struct{}
	waitErr  error
	stopOnce sync.Once
}

// Start launches the worker described by command (program followed by its
// arguments).
func Start(ctx context.Context, command []string, log *zap.SugaredLogger) (*Process, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if len(command) == 0 {
		return nil, fmt.Errorf("%w: empty worker command", ErrWorkerNotFound)
	}
	path, err := exec.LookPath(command[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkerNotFound, err)
	}

	cmd := exec.CommandContext(ctx, path, command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("open worker stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	log.Infow("Worker started", zap.String("path", path), zap.Int("pid", cmd.Process.Pid))

	p := &Process{
		Conn:   NewConn(stdin, stdout, log),
		cmd:    cmd,
		log:    log,
		exited: make(chan struct{}),
	}
	stderrDone := make(chan struct{})
	go forwardStderr(stderr, log, stderrDone)
	go p.wait(stderrDone)
	return p, nil
}

// wait reaps the process. Wait closes the pipes, so it must not run
// before both readers have hit EOF.
func (p *Process) wait(stderrDone <-chan struct{}) {
	<-p.Conn.Done()
	<-stderrDone
	p.waitErr = p.cmd.Wait()
	close(p.exited)
}

func forwardStderr(r io.Reader, log *zap.SugaredLogger, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		log.Infow(scanner.Text(), zap.String("source", "worker"))
	}
	if err := scanner.Err(); err != nil {
		log.Warnw("Stopped forwarding worker stderr", zap.Error(err))
	}
	_, _ = io.Copy(io.Discard, r)
}

// Close closes the worker's stdin and waits for it to exit, killing it if
// it does not stop in time. Later calls return nil once it has exited.
func (p *Process) Close() error {
	closeErr := p.Conn.Close()
	select {
	case <-p.exited:
	case <-time.After(stopTimeout):
		p.log.Warn("Worker did not stop in time, killing it")
		_ = p.cmd.Process.Kill()
		<-p.exited
	}
	p.stopOnce.Do(func() {
		if p.waitErr != nil {
			p.log.Warnw("Worker exited with error", zap.Error(p.waitErr))
		}
	})
	return closeErr
}

// Exited is closed once the worker process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}
