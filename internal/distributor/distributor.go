// Package distributor places claimed input files into the directories served
// by the fast-load fleet.
package distributor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// Mode selects how a reference to the source file is created.
type Mode string

const (
	ModeSymlink Mode = "symlink"
	ModeCopy    Mode = "copy"
)

// ParseMode parses a link mode; empty means symlink.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSymlink:
		return ModeSymlink, nil
	case ModeCopy:
		return ModeCopy, nil
	}
	return "", fmt.Errorf("unknown link mode %q (want symlink or copy): %w", s, fanload.ErrInvalidConfig)
}

const copyBufSize = 256 * 1024

// FileDistributor implements fanload.Distributor on the local filesystem.
type FileDistributor struct {
	mode Mode
}

// New creates a FileDistributor.
func New(mode Mode) *FileDistributor {
	if mode == "" {
		mode = ModeSymlink
	}
	return &FileDistributor{mode: mode}
}

// Distribute assigns paths round-robin over dirs and links each under its
// basename. Collisions are detected before anything is created.
func (d *FileDistributor) Distribute(paths []string, dirs []string) (map[string][]string, error) {
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no target directories: %w", fanload.ErrInvalidConfig)
	}

	type placement struct{ src, dest string }
	plan := make([]placement, 0, len(paths))
	seen := make(map[string]string, len(paths))
	placed := make(map[string][]string, len(dirs))

	for i, p := range paths {
		src, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		name := filepath.Base(src)
		if prev, ok := seen[name]; ok && prev != src {
			return nil, fmt.Errorf("%w: %s and %s share the name %q", fanload.ErrNameCollision, prev, src, name)
		}
		seen[name] = src

		dir := dirs[i%len(dirs)]
		dest := filepath.Join(dir, name)
		if _, err := os.Lstat(dest); err == nil {
			return nil, fmt.Errorf("%w: %s already exists", fanload.ErrNameCollision, dest)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", dest, err)
		}
		plan = append(plan, placement{src: src, dest: dest})
		placed[dir] = append(placed[dir], name)
	}

	for i, pl := range plan {
		if err := d.place(pl.src, pl.dest); err != nil {
			for _, done := range plan[:i] {
				_ = os.Remove(done.dest)
			}
			return nil, err
		}
	}
	return placed, nil
}

func (d *FileDistributor) place(src, dest string) error {
	if d.mode == ModeSymlink {
		if err := os.Symlink(src, dest); err != nil {
			return fmt.Errorf("link %s: %w", src, err)
		}
		return nil
	}
	return copyFile(src, dest)
}

// copyFile writes src to a temp file in dest's directory and renames it into
// place, so a reader never sees a partial file under dest.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriterSize(tmp, copyBufSize)
	_, err = io.Copy(bw, in)
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}

// Clear removes every entry from each dir. Missing dirs are ignored.
func (d *FileDistributor) Clear(dirs []string) error {
	var result *multierror.Error
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

var _ fanload.Distributor = (*FileDistributor)(nil)
