package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ejagojo/VibeScan/internal/scanner"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func relPaths(t *testing.T, root string, target scanner.Target) []string {
	t.Helper()
	out := make([]string, 0, len(target.Sources))
	for _, s := range target.Sources {
		rel, err := filepath.Rel(root, s.Path)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestEnumerate_Directory(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"app.py":                      "x = 1\n",
		"pkg/mod.py":                  "y = 2\n",
		"pkg/readme.md":               "# docs\n",
		".venv/lib/site.py":           "z = 3\n",
		"node_modules/x/y.py":         "z = 3\n",
		"pkg/__pycache__/mod.py":      "z = 3\n",
		"migrations/0001_initial.py":  "z = 3\n",
		"proto/service_pb2.py":        "z = 3\n",
		"deep/build/generated/gen.py": "z = 3\n",
	})

	target, err := Enumerate(dir, Options{Exclude: []string{"migrations", "*_pb2.py"}})
	require.NoError(t, err)

	assert.Equal(t, dir, target.Name)
	assert.Equal(t, []string{"app.py", "pkg/mod.py"}, relPaths(t, dir, target))
	assert.Equal(t, []byte("x = 1\n"), target.Sources[0].Data)
}

func TestEnumerate_UnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := writeTree(t, map[string]string{
		"app.py":        "x = 1\n",
		"locked/mod.py": "y = 2\n",
	})
	locked := filepath.Join(dir, "locked")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	target, err := Enumerate(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py"}, relPaths(t, dir, target))
}

func TestEnumerate_SingleFile(t *testing.T) {
	dir := writeTree(t, map[string]string{"one.py": "eval(x)\n", "notes.txt": "eval(x)\n"})

	target, err := Enumerate(filepath.Join(dir, "one.py"), Options{})
	require.NoError(t, err)
	require.Len(t, target.Sources, 1)
	assert.Equal(t, filepath.Join(dir, "one.py"), target.Sources[0].Path)

	target, err = Enumerate(filepath.Join(dir, "notes.txt"), Options{})
	require.NoError(t, err)
	assert.Empty(t, target.Sources)
}

func TestEnumerate_Missing(t *testing.T) {
	_, err := Enumerate(filepath.Join(t.TempDir(), "nope"), Options{})
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestEnumerate_MaxFileSize(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"small.py": "x = 1\n",
		"large.py": strings.Repeat("x", 100),
	})

	target, err := Enumerate(dir, Options{MaxFileSize: 50})
	require.NoError(t, err)
	assert.Equal(t, []string{"small.py"}, relPaths(t, dir, target))
}

func TestEnumerate_InvalidCommitRange(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.py": ""})
	_, err := Enumerate(dir, Options{CommitRange: "HEAD"})
	assert.Error(t, err)
}

func TestEnumerateAll(t *testing.T) {
	a := writeTree(t, map[string]string{"a.py": ""})
	b := writeTree(t, map[string]string{"b.py": "", "c.py": ""})

	targets, err := EnumerateAll([]string{a, b}, Options{})
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Len(t, targets[0].Sources, 1)
	assert.Len(t, targets[1].Sources, 2)

	_, err = EnumerateAll([]string{a, filepath.Join(b, "missing")}, Options{})
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestExcluded(t *testing.T) {
	tests := []struct {
		rel      string
		excludes []string
		want     bool
	}{
		{".git", DefaultExcludes, true},
		{"src/venv/lib.py", DefaultExcludes, true},
		{"src/app.py", DefaultExcludes, false},
		{"src/tests/test_app.py", []string{"tests"}, true},
		{"src/tests/test_app.py", []string{"test_*.py"}, true},
		{"src/gen/x.py", []string{"src/gen"}, true},
		{"src/generated.py", []string{"src/gen"}, false},
		{"a.py", []string{""}, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, excluded(tt.rel, tt.excludes), "excluded(%q, %v)", tt.rel, tt.excludes)
	}
}

func TestEnumerate_Since(t *testing.T) {
	dir := writeTree(t, map[string]string{"old.py": "x = 1\n", "pkg/keep.py": "y = 1\n"})
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	commit := func(msg string, when time.Time, names ...string) string {
		for _, n := range names {
			_, err := wt.Add(n)
			require.NoError(t, err)
		}
		sig := &object.Signature{Name: "Test", Email: "test@example.com", When: when}
		hash, err := wt.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig})
		require.NoError(t, err)
		return hash.String()
	}

	base := commit("initial", time.Unix(60, 0), "old.py", "pkg/keep.py")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "new.py"), []byte("z = 1\n"), 0644))
	commit("add new", time.Unix(120, 0), "pkg/new.py")

	target, err := Enumerate(dir, Options{Since: base})
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/new.py"}, relPaths(t, dir, target))

	target, err = Enumerate(dir, Options{CommitRange: base + "..HEAD"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/new.py"}, relPaths(t, dir, target))
}
