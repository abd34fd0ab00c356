package fleet

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vvka-141/fanload/internal/logging"
	"github.com/vvka-141/fanload/pkg/fanload"
)

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func sleepOptions() Options {
	return Options{
		Command:     "sleep",
		Args:        []string{"30"},
		Host:        "127.0.0.1",
		Scheme:      "gpfdist",
		StartGrace:  100 * time.Millisecond,
		StopTimeout: 500 * time.Millisecond,
	}
}

func TestManager_ArgsPlaceholders(t *testing.T) {
	m := NewManager(Options{
		Command: "gpfdist",
		Args:    []string{"-d", "{dir}", "-p", "{port}", "-l", "{log}"},
		LogPath: "/tmp/fleet.log",
	}, logging.NewNullLogger())

	assert.Equal(t, []string{"-d", "/srv/a", "-p", "8082", "-l", "/tmp/fleet.log"}, m.args("/srv/a", 8082))
}

func TestNewManager_NilLoggerPanics(t *testing.T) {
	assert.Panics(t, func() { NewManager(DefaultOptions(), nil) })
}

func TestManager_StartStop(t *testing.T) {
	requireTool(t, "sleep")
	m := NewManager(sleepOptions(), logging.NewNullLogger())

	s, err := m.Start(context.Background(), t.TempDir(), 9001)
	require.NoError(t, err)
	assert.False(t, s.Exited())
	assert.Equal(t, 1, m.Running())

	require.NoError(t, m.Stop(s))
	assert.True(t, s.Exited())
	assert.Equal(t, 0, m.Running())

	// Second stop is a no-op.
	require.NoError(t, m.Stop(s))
}

func TestManager_StartMissingBinary(t *testing.T) {
	opts := sleepOptions()
	opts.Command = "fanload-no-such-binary"
	m := NewManager(opts, logging.NewNullLogger())

	_, err := m.Start(context.Background(), t.TempDir(), 9001)
	require.Error(t, err)
	assert.ErrorIs(t, err, fanload.ErrFleetStart)
}

func TestManager_ExitDuringGrace(t *testing.T) {
	requireTool(t, "false")
	opts := sleepOptions()
	opts.Command = "false"
	opts.Args = nil
	opts.StartGrace = 2 * time.Second
	m := NewManager(opts, logging.NewNullLogger())

	start := time.Now()
	_, err := m.Start(context.Background(), t.TempDir(), 9001)
	require.Error(t, err)
	assert.ErrorIs(t, err, fanload.ErrFleetStart)
	assert.Contains(t, err.Error(), "exited during startup")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, m.Running())
}

func TestManager_StartCancelled(t *testing.T) {
	requireTool(t, "sleep")
	opts := sleepOptions()
	opts.StartGrace = 10 * time.Second
	m := NewManager(opts, logging.NewNullLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := m.Start(ctx, t.TempDir(), 9001)
	require.Error(t, err)
	assert.ErrorIs(t, err, fanload.ErrFleetStart)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_ProbeFailsWithoutListener(t *testing.T) {
	requireTool(t, "sleep")
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	opts := sleepOptions()
	opts.Probe = true
	m := NewManager(opts, logging.NewNullLogger())

	_, err = m.Start(context.Background(), t.TempDir(), port)
	require.Error(t, err)
	assert.ErrorIs(t, err, fanload.ErrFleetStart)
	assert.Contains(t, err.Error(), "probe")
}

func TestManager_ProbeSucceedsWithListener(t *testing.T) {
	requireTool(t, "sleep")
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	opts := sleepOptions()
	opts.Probe = true
	m := NewManager(opts, logging.NewNullLogger())

	s, err := m.Start(context.Background(), t.TempDir(), l.Addr().(*net.TCPAddr).Port)
	require.NoError(t, err)
	require.NoError(t, m.Stop(s))
}

func TestManager_StopKillsAfterTimeout(t *testing.T) {
	requireTool(t, "sh")
	opts := sleepOptions()
	opts.Command = "sh"
	opts.Args = []string{"-c", "trap '' TERM; while true; do sleep 1; done"}
	opts.StopTimeout = 200 * time.Millisecond
	m := NewManager(opts, logging.NewNullLogger())

	s, err := m.Start(context.Background(), t.TempDir(), 9001)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, m.Stop(s))
	assert.True(t, s.Exited())
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestManager_StopAll(t *testing.T) {
	requireTool(t, "sleep")
	m := NewManager(sleepOptions(), logging.NewNullLogger())

	var servers []*Server
	for i := 0; i < 3; i++ {
		s, err := m.Start(context.Background(), t.TempDir(), 9001+i)
		require.NoError(t, err)
		servers = append(servers, s)
	}
	require.Equal(t, 3, m.Running())

	require.NoError(t, m.StopAll())
	assert.Equal(t, 0, m.Running())
	for _, s := range servers {
		assert.True(t, s.Exited())
	}
}

func TestManager_OutputReceivesServerLog(t *testing.T) {
	requireTool(t, "sh")
	logPath := filepath.Join(t.TempDir(), "fleet.log")
	f, err := os.Create(logPath)
	require.NoError(t, err)
	defer f.Close()

	opts := sleepOptions()
	opts.Command = "sh"
	opts.Args = []string{"-c", "echo serving {dir} on {port}; exec sleep 30"}
	opts.Output = f
	m := NewManager(opts, logging.NewNullLogger())

	s, err := m.Start(context.Background(), "/data/x", 9005)
	require.NoError(t, err)
	require.NoError(t, m.Stop(s))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "serving /data/x on 9005"))
}
