// Package gitserver wraps the go-git operations the project manager needs:
// opening and initializing bare repositories, structural validity checks,
// and mirror clones for forks.
package gitserver

import (
	"context"
	"fmt"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// diffAlgorithm is applied to every opened repository. Histogram produces
// better hunks than the default myers at comparable cost.
const diffAlgorithm = "histogram"

// Repository is a live handle to one bare repository. go-git keeps no
// process-level resources that need explicit release, so Close marks the
// handle unusable and drops the underlying reference; callers must not use
// the handle afterwards.
type Repository struct {
	path string

	mu     sync.Mutex
	repo   *gogit.Repository
	closed bool
}

// Path returns the git directory this handle is bound to.
func (r *Repository) Path() string {
	return r.path
}

// Git returns the underlying go-git repository, or an error if the handle
// has been closed.
func (r *Repository) Git() (*gogit.Repository, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("repository handle %s is closed", r.path)
	}
	return r.repo, nil
}

// Close releases the handle. Closing twice is an error.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("repository handle %s already closed", r.path)
	}
	r.closed = true
	r.repo = nil
	return nil
}

// Closed reports whether Close has been called.
func (r *Repository) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Open opens the bare repository at path and applies the histogram diff
// preference to its config.
func Open(path string) (*Repository, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	cfg, err := repo.Config()
	if err != nil {
		return nil, fmt.Errorf("read repository config %s: %w", path, err)
	}
	cfg.Raw.Section("diff").SetOption("algorithm", diffAlgorithm)
	if err := repo.SetConfig(cfg); err != nil {
		return nil, fmt.Errorf("write repository config %s: %w", path, err)
	}
	return &Repository{path: path, repo: repo}, nil
}

// InitBare initializes a fresh bare repository at path.
func InitBare(path string) error {
	if _, err := gogit.PlainInit(path, true); err != nil {
		return fmt.Errorf("init bare repository %s: %w", path, err)
	}
	return nil
}

// IsValid reports whether path holds a structurally valid repository. A
// directory that exists but fails this check was never a usable repository.
func IsValid(path string) bool {
	_, err := gogit.PlainOpen(path)
	return err == nil
}

// MirrorClone clones the repository at srcPath into dstPath as a bare
// mirror, carrying over every ref.
func MirrorClone(ctx context.Context, srcPath, dstPath string) error {
	_, err := gogit.PlainCloneContext(ctx, dstPath, true, &gogit.CloneOptions{
		URL:    srcPath,
		Mirror: true,
	})
	if err != nil {
		return fmt.Errorf("mirror clone %s to %s: %w", srcPath, dstPath, err)
	}
	return nil
}

// RefToBranch returns the branch name of a refs/heads ref, or false for any
// other ref.
func RefToBranch(refName string) (string, bool) {
	rn := plumbing.ReferenceName(refName)
	if !rn.IsBranch() {
		return "", false
	}
	return rn.Short(), true
}

// RefToTag returns the tag name of a refs/tags ref, or false for any other
// ref.
func RefToTag(refName string) (string, bool) {
	rn := plumbing.ReferenceName(refName)
	if !rn.IsTag() {
		return "", false
	}
	return rn.Short(), true
}
