// Package fleet runs the fast-load file servers (gpfdist) that expose served
// directories to the database segments.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// probeTimeout bounds one readiness dial.
const probeTimeout = time.Second

// Options configures how servers are launched and addressed.
type Options struct {
	// Command is the server binary.
	Command string
	// Args may contain {dir}, {port} and {log} placeholders.
	Args []string
	// Host and Scheme form served locations: scheme://host:port/name.
	Host   string
	Scheme string
	// LogPath replaces {log} in Args.
	LogPath string
	// Output receives server stdout and stderr. Nil discards it.
	Output io.Writer

	StartGrace  time.Duration
	StopTimeout time.Duration
	// Probe dials host:port after the grace period and fails the start if nothing listens.
	Probe bool
}

// DefaultOptions returns gpfdist defaults.
func DefaultOptions() Options {
	return Options{
		Command:     fanload.DefaultFleetCommand,
		Args:        []string{"-d", "{dir}", "-p", "{port}"},
		Host:        "localhost",
		Scheme:      fanload.DefaultFleetScheme,
		StartGrace:  fanload.DefaultFleetStartGrace,
		StopTimeout: fanload.DefaultFleetStopTimeout,
	}
}

// Server is one running fast-load server process.
type Server struct {
	Dir  string
	Port int

	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// Exited reports whether the process has terminated.
func (s *Server) Exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Pid returns the process id.
func (s *Server) Pid() int {
	return s.cmd.Process.Pid
}

// Manager starts and stops servers and tracks the ones it started.
// Safe for concurrent use.
type Manager struct {
	opts   Options
	logger fanload.Logger

	mu      sync.Mutex
	running map[*Server]struct{}
}

// NewManager creates a Manager. Panics if logger is nil.
func NewManager(opts Options, logger fanload.Logger) *Manager {
	if logger == nil {
		panic("logger cannot be nil")
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	return &Manager{opts: opts, logger: logger, running: make(map[*Server]struct{})}
}

// Options returns the manager's configuration.
func (m *Manager) Options() Options {
	return m.opts
}

func (m *Manager) args(dir string, port int) []string {
	r := strings.NewReplacer("{dir}", dir, "{port}", strconv.Itoa(port), "{log}", m.opts.LogPath)
	out := make([]string, len(m.opts.Args))
	for i, a := range m.opts.Args {
		out[i] = r.Replace(a)
	}
	return out
}

// Start launches a server for dir on port and waits the startup grace period.
// A process that exits during grace, fails the probe, or is cancelled by ctx
// is reaped and reported as ErrFleetStart.
func (m *Manager) Start(ctx context.Context, dir string, port int) (*Server, error) {
	cmd := exec.Command(m.opts.Command, m.args(dir, port)...)
	cmd.Stdout = m.opts.Output
	cmd.Stderr = m.opts.Output

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s on port %d: %w", fanload.ErrFleetStart, m.opts.Command, port, err)
	}
	s := &Server{Dir: dir, Port: port, cmd: cmd, done: make(chan struct{})}
	go func() {
		s.waitErr = cmd.Wait()
		close(s.done)
	}()

	timer := time.NewTimer(m.opts.StartGrace)
	defer timer.Stop()
	select {
	case <-s.done:
		return nil, fmt.Errorf("%w: %s on port %d exited during startup: %v", fanload.ErrFleetStart, m.opts.Command, port, s.waitErr)
	case <-ctx.Done():
		m.kill(s)
		return nil, fmt.Errorf("%w: port %d: %w", fanload.ErrFleetStart, port, ctx.Err())
	case <-timer.C:
	}

	if m.opts.Probe {
		addr := net.JoinHostPort(m.opts.Host, strconv.Itoa(port))
		conn, err := net.DialTimeout("tcp", addr, probeTimeout)
		if err != nil {
			m.kill(s)
			return nil, fmt.Errorf("%w: probe %s: %w", fanload.ErrFleetStart, addr, err)
		}
		conn.Close()
	}

	m.mu.Lock()
	m.running[s] = struct{}{}
	m.mu.Unlock()
	m.logger.Verbose("Started %s (pid %d) on port %d serving %s", m.opts.Command, s.Pid(), port, dir)
	return s, nil
}

// Stop terminates s: SIGTERM, then SIGKILL after the stop timeout.
// Stopping an already exited server is not an error.
func (m *Manager) Stop(s *Server) error {
	m.mu.Lock()
	delete(m.running, s)
	m.mu.Unlock()

	if s.Exited() {
		return nil
	}
	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Verbose("SIGTERM to pid %d failed: %v", s.Pid(), err)
	}

	timer := time.NewTimer(m.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-s.done:
		m.logger.Verbose("Stopped server on port %d", s.Port)
		return nil
	case <-timer.C:
	}

	m.logger.Info("Server on port %d did not stop within %v, killing it", s.Port, m.opts.StopTimeout)
	if !m.kill(s) {
		return fmt.Errorf("kill server on port %d (pid %d) failed", s.Port, s.Pid())
	}
	return nil
}

// kill sends SIGKILL and waits for the reaper. Reports whether the process is gone.
func (m *Manager) kill(s *Server) bool {
	_ = s.cmd.Process.Kill()
	select {
	case <-s.done:
		return true
	case <-time.After(m.opts.StopTimeout + time.Second):
		return false
	}
}

// Running returns the number of servers started and not yet stopped.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// StopAll stops every tracked server, aggregating failures.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	servers := make([]*Server, 0, len(m.running))
	for s := range m.running {
		servers = append(servers, s)
	}
	m.mu.Unlock()

	var result *multierror.Error
	for _, s := range servers {
		if err := m.Stop(s); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
