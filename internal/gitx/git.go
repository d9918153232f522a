package gitx

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrInvalidRange is returned when the from commit is after the to commit
var ErrInvalidRange = errors.New("from commit is after to commit")

// ChangedFiles returns the files that differ between since and HEAD,
// relative to the repository root. An empty since lists every file at HEAD.
// Deleted files are not reported.
func ChangedFiles(repoPath string, since string) ([]string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, err
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	current, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, err
	}

	if since == "" {
		return allFiles(current)
	}

	base, err := resolveCommit(repo, since)
	if err != nil {
		return nil, err
	}
	return diffFiles(base, current)
}

// FilesInRange returns the files that differ between two revisions given
// as from and to.
func FilesInRange(repoPath, from, to string) ([]string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, err
	}

	fromCommit, err := resolveCommit(repo, from)
	if err != nil {
		return nil, err
	}
	toCommit, err := resolveCommit(repo, to)
	if err != nil {
		return nil, err
	}

	if fromCommit.Committer.When.After(toCommit.Committer.When) {
		return nil, ErrInvalidRange
	}
	return diffFiles(fromCommit, toCommit)
}

func resolveCommit(repo *git.Repository, rev string) (*object.Commit, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", rev, err)
	}
	return repo.CommitObject(*hash)
}

func diffFiles(from, to *object.Commit) ([]string, error) {
	fromTree, err := from.Tree()
	if err != nil {
		return nil, err
	}
	toTree, err := to.Tree()
	if err != nil {
		return nil, err
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(changes))
	for _, c := range changes {
		if c.To.Name == "" {
			continue
		}
		files = append(files, c.To.Name)
	}
	sort.Strings(files)
	return files, nil
}

func allFiles(commit *object.Commit) ([]string, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}

	var files []string
	err = tree.Files().ForEach(func(f *object.File) error {
		files = append(files, f.Name)
		return nil
	})
	sort.Strings(files)
	return files, err
}
