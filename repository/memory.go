package repository

import (
	"sort"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/teranos/ciconf/errors"
)

var commitAuthor = object.Signature{
	Name:  "ciconf",
	Email: "ciconf@localhost",
	When:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
}

// InitMemory creates an in-memory repository whose first commit holds
// files (path to content). It returns the repository and the commit SHA.
func InitMemory(files map[string]string) (*git.Repository, string, error) {
	repo, err := git.Init(memory.NewStorage(), memfs.New())
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to init in-memory repository")
	}
	sha, err := Commit(repo, files, "initial commit")
	if err != nil {
		return nil, "", err
	}
	return repo, sha, nil
}

// Commit writes files into the worktree of repo and commits them. Existing
// files not named stay as they are.
func Commit(repo *git.Repository, files map[string]string, message string) (string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return "", errors.Wrap(err, "repository has no worktree")
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		name := cleanPath(p)
		if err := util.WriteFile(wt.Filesystem, name, []byte(files[p]), 0o644); err != nil {
			return "", errors.Wrapf(err, "failed to write %s", name)
		}
		if _, err := wt.Add(name); err != nil {
			return "", errors.Wrapf(err, "failed to stage %s", name)
		}
	}

	author := commitAuthor
	hash, err := wt.Commit(message, &git.CommitOptions{Author: &author, AllowEmptyCommits: len(files) == 0})
	if err != nil {
		return "", errors.Wrap(err, "failed to commit")
	}
	return hash.String(), nil
}

// Tag creates a lightweight tag pointing at sha.
func Tag(repo *git.Repository, name, sha string) error {
	if _, err := repo.CreateTag(name, plumbing.NewHash(sha), nil); err != nil {
		return errors.Wrapf(err, "failed to tag %s", name)
	}
	return nil
}

// Branch points a branch at sha.
func Branch(repo *git.Repository, name, sha string) error {
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), plumbing.NewHash(sha))
	if err := repo.Storer.SetReference(ref); err != nil {
		return errors.Wrapf(err, "failed to create branch %s", name)
	}
	return nil
}
