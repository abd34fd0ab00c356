package distributor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vvka-141/fanload/pkg/fanload"
)

func writeSources(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var paths []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("h\n"+n+"\n"), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func targetDirs(t *testing.T, n int) []string {
	t.Helper()
	root := t.TempDir()
	var dirs []string
	for i := 0; i < n; i++ {
		d := filepath.Join(root, "fanload_"+string(rune('0'+i)))
		require.NoError(t, os.Mkdir(d, 0o755))
		dirs = append(dirs, d)
	}
	return dirs
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSymlink, m)

	m, err = ParseMode("copy")
	require.NoError(t, err)
	assert.Equal(t, ModeCopy, m)

	_, err = ParseMode("hardlink")
	assert.ErrorIs(t, err, fanload.ErrInvalidConfig)
}

func TestDistribute_RoundRobinSymlinks(t *testing.T) {
	src := writeSources(t, t.TempDir(), "a.csv", "b.csv", "c.csv")
	dirs := targetDirs(t, 2)

	placed, err := New(ModeSymlink).Distribute(src, dirs)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.csv", "c.csv"}, placed[dirs[0]])
	assert.Equal(t, []string{"b.csv"}, placed[dirs[1]])

	target, err := os.Readlink(filepath.Join(dirs[0], "c.csv"))
	require.NoError(t, err)
	assert.Equal(t, src[2], target)

	// Sources untouched.
	for _, p := range src {
		info, err := os.Lstat(p)
		require.NoError(t, err)
		assert.True(t, info.Mode().IsRegular())
	}
}

func TestDistribute_Copy(t *testing.T) {
	src := writeSources(t, t.TempDir(), "a.csv")
	dirs := targetDirs(t, 1)

	_, err := New(ModeCopy).Distribute(src, dirs)
	require.NoError(t, err)

	dest := filepath.Join(dirs[0], "a.csv")
	info, err := os.Lstat(dest)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "h\na.csv\n", string(data))

	entries, err := os.ReadDir(dirs[0])
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestDistribute_BasenameCollision(t *testing.T) {
	root := t.TempDir()
	src := writeSources(t, root, "x/a.csv", "y/a.csv")
	dirs := targetDirs(t, 2)

	_, err := New(ModeSymlink).Distribute(src, dirs)
	require.Error(t, err)
	assert.ErrorIs(t, err, fanload.ErrNameCollision)

	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		require.NoError(t, err)
		assert.Empty(t, entries, "nothing created on collision")
	}
}

func TestDistribute_ExistingEntryCollides(t *testing.T) {
	src := writeSources(t, t.TempDir(), "a.csv")
	dirs := targetDirs(t, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dirs[0], "a.csv"), nil, 0o644))

	_, err := New(ModeSymlink).Distribute(src, dirs)
	assert.ErrorIs(t, err, fanload.ErrNameCollision)
}

func TestDistribute_NoDirs(t *testing.T) {
	_, err := New(ModeSymlink).Distribute([]string{"/a.csv"}, nil)
	assert.ErrorIs(t, err, fanload.ErrInvalidConfig)
}

func TestDistribute_MissingSourceRollsBack(t *testing.T) {
	root := t.TempDir()
	src := writeSources(t, root, "a.csv")
	src = append(src, filepath.Join(root, "missing.csv"))
	dirs := targetDirs(t, 1)

	_, err := New(ModeCopy).Distribute(src, dirs)
	require.Error(t, err)

	entries, err := os.ReadDir(dirs[0])
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClear(t *testing.T) {
	src := writeSources(t, t.TempDir(), "a.csv", "b.csv")
	dirs := targetDirs(t, 2)
	d := New(ModeSymlink)

	_, err := d.Distribute(src, dirs)
	require.NoError(t, err)

	missing := filepath.Join(t.TempDir(), "gone")
	require.NoError(t, d.Clear(append(dirs, missing)))

	for _, dir := range dirs {
		assert.DirExists(t, dir)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
	for _, p := range src {
		assert.FileExists(t, p)
	}

	// Reusable after clear.
	_, err = d.Distribute(src, dirs)
	require.NoError(t, err)
}
