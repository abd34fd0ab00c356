// Package corpus finds input files and measures them: record counts for
// verification and source keys for per-file row attribution.
package corpus

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"
)

// GzipSuffix marks compressed inputs, decompressed transparently by Open.
const GzipSuffix = ".gz"

// Scan returns the absolute paths of regular files under dir whose base name
// matches pattern, sorted. Subdirectories are visited only when recursive.
func Scan(dir, pattern string, recursive bool) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// SourceKey derives the per-file key stored in the destination's key column:
// the base name without its compression suffix and extension.
//
//	/data/USW00094728.csv.gz -> USW00094728
func SourceKey(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), GzipSuffix)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Open returns a reader over the file's content, decompressing .gz files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, GzipSuffix) {
		return f, nil
	}
	zr, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open gzip %s: %w", path, err)
	}
	return &gzipFile{Reader: zr, file: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	return errors.Join(g.Reader.Close(), g.file.Close())
}

// CountRecords returns the number of CSV data records in path, excluding the
// header line. Quoted fields may span lines. An empty file has zero records.
func CountRecords(path string) (int64, error) {
	rc, err := Open(path)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	r := csv.NewReader(bufio.NewReaderSize(rc, 1<<16))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	var n int64
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("count records in %s: %w", path, err)
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n - 1, nil
}

// CountAll counts records of every path with at most workers concurrent readers.
// The result is keyed by path.
func CountAll(ctx context.Context, paths []string, workers int) (map[string]int64, error) {
	return CountAllFunc(ctx, paths, workers, CountRecords)
}

// CountAllFunc is CountAll with a custom per-file counter.
func CountAllFunc(ctx context.Context, paths []string, workers int, count func(path string) (int64, error)) (map[string]int64, error) {
	if workers < 1 {
		workers = 1
	}
	counts := make([]int64, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := count(p)
			if err != nil {
				return err
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(paths))
	for i, p := range paths {
		out[p] = counts[i]
	}
	return out, nil
}
