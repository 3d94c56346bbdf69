// Package producer starts the external process that connects back to the
// receiver and streams frame segments.
package producer

import (
	"context"
	"os/exec"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/kvsview/kvsview/internal/util"
)

// Options describes the producer invocation. The positional arguments always
// end with port, stream and region, in that order.
type Options struct {
	Command string
	// Args go between Command and the positional arguments, e.g. -cp jar class.
	Args   []string
	Port   int
	Stream string
	Region string
	// Dir is the working directory; empty means the current one.
	Dir string
}

// JavaOptions builds Options for a java main class on a classpath.
func JavaOptions(java, classpath, class string, port int, stream, region string) Options {
	return Options{
		Command: java,
		Args:    []string{"-cp", classpath, class},
		Port:    port,
		Stream:  stream,
		Region:  region,
	}
}

// Launcher owns the producer process handle.
type Launcher struct {
	opts Options

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout *util.PrefixLogWriter
	stderr *util.PrefixLogWriter
	done   chan struct{}
	err    error
}

func NewLauncher(opts Options) *Launcher {
	return &Launcher{opts: opts}
}

// Argv returns the full command line, command first.
func (l *Launcher) Argv() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.argvLocked()
}

func (l *Launcher) argvLocked() []string {
	argv := append([]string{l.opts.Command}, l.opts.Args...)
	return append(argv, strconv.Itoa(l.opts.Port), l.opts.Stream, l.opts.Region)
}

// Start launches the producer and returns without waiting for it. A non-zero
// port replaces Options.Port, so the producer learns the port actually bound.
// Nothing checks that it comes up or that it ever connects.
func (l *Launcher) Start(ctx context.Context, port int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cmd != nil {
		return errors.New("producer already started")
	}
	if l.opts.Command == "" {
		return errors.New("producer command is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if port > 0 {
		l.opts.Port = port
	}
	argv := l.argvLocked()
	// Not CommandContext: the producer outlives a cancelled receive loop
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = l.opts.Dir
	setProcGroup(cmd)

	l.stdout = util.NewPrefixLogWriter("[producer-out]")
	l.stderr = util.NewPrefixLogWriter("[producer-err]")
	cmd.Stdout = l.stdout
	cmd.Stderr = l.stderr

	util.GetLogger().Info("Starting producer", "command", cmd.String())
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start producer %s", argv[0])
	}

	l.cmd = cmd
	l.done = make(chan struct{})
	go l.reap(cmd, l.done)

	util.GetLogger().Info("Producer started", "pid", cmd.Process.Pid)
	return nil
}

func (l *Launcher) reap(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	l.mu.Lock()
	l.err = err
	l.stdout.Flush()
	l.stderr.Flush()
	l.mu.Unlock()

	if err != nil {
		util.GetLogger().Warn("Producer exited", "pid", cmd.Process.Pid, "error", err)
	} else {
		util.GetLogger().Info("Producer exited", "pid", cmd.Process.Pid)
	}
	close(done)
}

// Pid returns the producer process id, or 0 before Start.
func (l *Launcher) Pid() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd == nil || l.cmd.Process == nil {
		return 0
	}
	return l.cmd.Process.Pid
}

// Wait blocks until the producer exits or ctx is done.
func (l *Launcher) Wait(ctx context.Context) error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	if done == nil {
		return errors.New("producer not started")
	}

	select {
	case <-done:
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Exited reports whether the producer has terminated
func (l *Launcher) Exited() bool {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// Stop kills the producer and its process group. It is a no-op when the
// producer was never started or has already exited.
func (l *Launcher) Stop() error {
	l.mu.Lock()
	cmd := l.cmd
	l.mu.Unlock()

	if cmd == nil || l.Exited() {
		return nil
	}

	util.GetLogger().Info("Stopping producer", "pid", cmd.Process.Pid)
	if err := killProcGroup(cmd); err != nil {
		return errors.Wrap(err, "failed to stop producer")
	}
	return nil
}
