package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ejagojo/VibeScan/internal/gitx"
	"github.com/ejagojo/VibeScan/internal/scanner"
)

// PythonExt is the only extension enumerated.
const PythonExt = ".py"

// ErrNotExist is returned when a target path does not exist.
var ErrNotExist = errors.New("target does not exist")

// DefaultExcludes are directory names never descended into.
var DefaultExcludes = []string{".git", ".venv", "venv", "node_modules", "dist", "build", "__pycache__"}

// Options controls which files of a target are handed to the scanner.
type Options struct {
	// Exclude entries match any path component exactly, or the path
	// relative to the target as a glob.
	Exclude     []string
	MaxFileSize int64
	// Since restricts a git checkout to files changed since a revision.
	Since string
	// CommitRange ("from..to") restricts a git checkout to files touched
	// in the range.
	CommitRange string
	Logger      *zap.Logger
}

// Enumerate lists the Python sources of target. A directory is walked
// recursively without following symlinks; a single .py file yields
// itself; any other file yields nothing. A missing target is an error.
func Enumerate(target string, opts Options) (scanner.Target, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return scanner.Target{}, fmt.Errorf("%w: %s", ErrNotExist, target)
		}
		return scanner.Target{}, fmt.Errorf("failed to stat target: %w", err)
	}

	result := scanner.Target{Name: target}
	if !info.IsDir() {
		if filepath.Ext(target) != PythonExt || tooLarge(info.Size(), opts.MaxFileSize) {
			return result, nil
		}
		src, err := read(target)
		if err != nil {
			return scanner.Target{}, err
		}
		result.Sources = []scanner.Source{src}
		return result, nil
	}

	allowed, err := changedFiles(target, opts)
	if err != nil {
		return scanner.Target{}, err
	}

	excludes := append(append([]string(nil), DefaultExcludes...), opts.Exclude...)
	err = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == target || !errors.Is(err, fs.ErrPermission) {
				return err
			}
			logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(target, path)
		if relErr != nil {
			rel = path
		}
		if rel != "." && excluded(rel, excludes) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != PythonExt {
			return nil
		}
		if !d.Type().IsRegular() {
			logger.Debug("skipping non-regular file", zap.String("path", path))
			return nil
		}
		if allowed != nil && !allowed[filepath.ToSlash(rel)] {
			return nil
		}

		if fi, err := d.Info(); err == nil && tooLarge(fi.Size(), opts.MaxFileSize) {
			logger.Debug("skipping large file", zap.String("path", path), zap.Int64("size", fi.Size()))
			return nil
		}

		src, err := read(path)
		if err != nil {
			return err
		}
		result.Sources = append(result.Sources, src)
		return nil
	})
	if err != nil {
		return scanner.Target{}, fmt.Errorf("failed to walk %s: %w", target, err)
	}

	sort.Slice(result.Sources, func(i, j int) bool { return result.Sources[i].Path < result.Sources[j].Path })
	return result, nil
}

// EnumerateAll enumerates every target in order.
func EnumerateAll(targets []string, opts Options) ([]scanner.Target, error) {
	out := make([]scanner.Target, 0, len(targets))
	for _, t := range targets {
		target, err := Enumerate(t, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, target)
	}
	return out, nil
}

func read(path string) (scanner.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scanner.Source{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return scanner.Source{Path: path, Data: data}, nil
}

func tooLarge(size, limit int64) bool {
	return limit > 0 && size > limit
}

func excluded(rel string, excludes []string) bool {
	slashed := filepath.ToSlash(rel)
	parts := strings.Split(slashed, "/")
	for _, ex := range excludes {
		ex = strings.TrimSuffix(filepath.ToSlash(ex), "/")
		if ex == "" {
			continue
		}
		for _, p := range parts {
			if p == ex {
				return true
			}
			if ok, _ := filepath.Match(ex, p); ok {
				return true
			}
		}
		if ok, _ := filepath.Match(ex, slashed); ok {
			return true
		}
		if strings.HasPrefix(slashed, ex+"/") {
			return true
		}
	}
	return false
}

// changedFiles returns the repository-relative files a git-scoped scan
// may look at, or nil when the scan is not git-scoped.
func changedFiles(dir string, opts Options) (map[string]bool, error) {
	var (
		files []string
		err   error
	)
	switch {
	case opts.CommitRange != "":
		from, to, ok := strings.Cut(opts.CommitRange, "..")
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid commit range %q, want from..to", opts.CommitRange)
		}
		files, err = gitx.FilesInRange(dir, from, to)
	case opts.Since != "":
		files, err = gitx.ChangedFiles(dir, opts.Since)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list git changes: %w", err)
	}

	allowed := make(map[string]bool, len(files))
	for _, f := range files {
		allowed[filepath.ToSlash(f)] = true
	}
	return allowed, nil
}
