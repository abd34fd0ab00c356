package fleet

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/vvka-141/fanload/pkg/fanload"
)

type member struct {
	dir    string
	server *Server
}

// Fleet implements fanload.Fleet over servers started by one Manager.
type Fleet struct {
	manager *Manager
	members []member

	closeOnce sync.Once
	closeErr  error
}

// StartFleet creates size served directories under workDir and starts one
// server per directory on ports basePort+i. Members that fail to start are
// logged and dropped along with their directory; ErrNoFleet is returned if
// none start.
func StartFleet(ctx context.Context, m *Manager, size int, workDir string, basePort int) (*Fleet, error) {
	if size < 1 {
		return nil, fmt.Errorf("fleet size must be at least 1: %w", fanload.ErrInvalidConfig)
	}

	started := make([]*member, size)
	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		dir := filepath.Join(workDir, fmt.Sprintf("%s%d", fanload.ServedDirPrefix, i))
		port := basePort + i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := os.MkdirAll(dir, 0o755); err != nil {
				m.logger.Error("Cannot create served directory %s: %v", dir, err)
				return
			}
			s, err := m.Start(ctx, dir, port)
			if err != nil {
				m.logger.Error("%v", err)
				if rmErr := os.RemoveAll(dir); rmErr != nil {
					m.logger.Verbose("Remove %s: %v", dir, rmErr)
				}
				return
			}
			started[i] = &member{dir: dir, server: s}
		}()
	}
	wg.Wait()

	f := &Fleet{manager: m}
	for _, mem := range started {
		if mem != nil {
			f.members = append(f.members, *mem)
		}
	}
	if len(f.members) == 0 {
		return nil, fmt.Errorf("%w: 0 of %d servers came up", fanload.ErrNoFleet, size)
	}
	if len(f.members) < size {
		m.logger.Info("Started %d of %d fast-load servers", len(f.members), size)
	}
	return f, nil
}

func (f *Fleet) Size() int {
	return len(f.members)
}

func (f *Fleet) Dir(slot int) string {
	return f.members[slot].dir
}

func (f *Fleet) Dirs() []string {
	out := make([]string, len(f.members))
	for i, mem := range f.members {
		out[i] = mem.dir
	}
	return out
}

// Location returns scheme://host:port/name for slot's server.
func (f *Fleet) Location(slot int, name string) string {
	opts := f.manager.opts
	host := net.JoinHostPort(opts.Host, strconv.Itoa(f.members[slot].server.Port))
	return fmt.Sprintf("%s://%s/%s", opts.Scheme, host, name)
}

// Close stops all servers, then removes the served directories. Idempotent;
// later calls return the first call's result.
func (f *Fleet) Close(ctx context.Context) error {
	f.closeOnce.Do(func() {
		var result *multierror.Error
		for _, mem := range f.members {
			if err := f.manager.Stop(mem.server); err != nil {
				result = multierror.Append(result, err)
			}
		}
		for _, mem := range f.members {
			if err := os.RemoveAll(mem.dir); err != nil {
				result = multierror.Append(result, fmt.Errorf("remove %s: %w", mem.dir, err))
			}
		}
		f.closeErr = result.ErrorOrNil()
	})
	return f.closeErr
}

var _ fanload.Fleet = (*Fleet)(nil)
