// Package repository serves file contents, tree listings and tags of the
// projects includes can reference, backed by go-git repositories.
package repository

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/teranos/ciconf/errors"
	"github.com/teranos/ciconf/logger"
	"go.uber.org/zap"
)

// Store maps project paths to repositories and records who may read them.
type Store struct {
	mu     sync.RWMutex
	repos  map[string]*git.Repository
	public map[string]bool
	grants map[string]map[string]bool
	logger *zap.SugaredLogger
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		repos:  make(map[string]*git.Repository),
		public: make(map[string]bool),
		grants: make(map[string]map[string]bool),
		logger: logger.ComponentLogger("repository"),
	}
}

// ProjectKey normalizes a project path: lower case, no surrounding slashes.
func ProjectKey(project string) string {
	return strings.ToLower(strings.Trim(project, "/"))
}

// Add registers repo under project.
func (s *Store) Add(project string, repo *git.Repository) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[ProjectKey(project)] = repo
}

// Open registers the repository found at dir on disk.
func (s *Store) Open(project, dir string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to open repository %s for %s", dir, project)
	}
	s.Add(project, repo)
	s.logger.Debugw("Repository opened", logger.FieldProject, project, "dir", dir)
	return nil
}

// SetPublic makes project readable by everyone.
func (s *Store) SetPublic(project string, public bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.public[ProjectKey(project)] = public
}

// Grant lets user read project.
func (s *Store) Grant(project, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ProjectKey(project)
	if s.grants[key] == nil {
		s.grants[key] = make(map[string]bool)
	}
	s.grants[key][user] = true
}

// CanRead reports whether user may read project. Unknown projects are
// never readable.
func (s *Store) CanRead(project, user string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := ProjectKey(project)
	if _, ok := s.repos[key]; !ok {
		return false
	}
	return s.public[key] || s.grants[key][user]
}

// ResolveCommit resolves a branch, tag, commit SHA or "" (HEAD) to a
// commit SHA.
func (s *Store) ResolveCommit(ctx context.Context, project, ref string) (string, error) {
	repo, err := s.repository(ctx, project)
	if err != nil {
		return "", err
	}
	hash, err := resolve(repo, ref)
	if err != nil {
		return "", errors.Wrapf(err, "project %s", project)
	}
	return hash.String(), nil
}

// ReadFile returns the content of file at the given commit.
func (s *Store) ReadFile(ctx context.Context, project, sha, file string) ([]byte, error) {
	commit, err := s.commit(ctx, project, sha)
	if err != nil {
		return nil, err
	}

	f, err := commit.File(cleanPath(file))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, errors.NewNotFoundError("file %s not found in %s at %s", file, project, sha)
		}
		return nil, errors.Wrapf(err, "failed to read %s in %s", file, project)
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s in %s", file, project)
	}
	return []byte(contents), nil
}

// ListFiles lists every file of the commit's tree, sorted.
func (s *Store) ListFiles(ctx context.Context, project, sha string) ([]string, error) {
	commit, err := s.commit(ctx, project, sha)
	if err != nil {
		return nil, err
	}
	iter, err := commit.Files()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list files of %s", project)
	}
	defer iter.Close()

	var files []string
	err = iter.ForEach(func(f *object.File) error {
		files = append(files, f.Name)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list files of %s", project)
	}
	sort.Strings(files)
	return files, nil
}

// Tags lists the tag names of project, sorted.
func (s *Store) Tags(ctx context.Context, project string) ([]string, error) {
	repo, err := s.repository(ctx, project)
	if err != nil {
		return nil, err
	}
	iter, err := repo.Tags()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list tags of %s", project)
	}
	defer iter.Close()

	var tags []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		tags = append(tags, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list tags of %s", project)
	}
	sort.Strings(tags)
	return tags, nil
}

func (s *Store) repository(ctx context.Context, project string) (*git.Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Mark(err, errors.ErrTimeout)
	}
	s.mu.RLock()
	repo, ok := s.repos[ProjectKey(project)]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError("project %s not found", project)
	}
	return repo, nil
}

func (s *Store) commit(ctx context.Context, project, sha string) (*object.Commit, error) {
	repo, err := s.repository(ctx, project)
	if err != nil {
		return nil, err
	}
	hash, err := resolve(repo, sha)
	if err != nil {
		return nil, errors.Wrapf(err, "project %s", project)
	}
	commit, err := repo.CommitObject(hash)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, errors.NewNotFoundError("commit %s not found in %s", sha, project)
		}
		return nil, errors.Wrapf(err, "failed to load commit %s of %s", sha, project)
	}
	return commit, nil
}

func resolve(repo *git.Repository, ref string) (plumbing.Hash, error) {
	if ref == "" {
		ref = "HEAD"
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) {
			return plumbing.ZeroHash, errors.NewNotFoundError("ref %s not found", ref)
		}
		return plumbing.ZeroHash, errors.Wrapf(err, "failed to resolve %s", ref)
	}
	return *hash, nil
}

func cleanPath(file string) string {
	return strings.TrimPrefix(path.Clean("/"+file), "/")
}
