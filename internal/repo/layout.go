// Package repo implements the Repository Layout Manager: it builds the
// on-disk paths for staging, versioned, and "current alias" entries, and
// performs the atomic publish step that promotes a staged upload into a
// user's repository.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/boatd/boatd/internal/registry"
)

// ErrCurrentExists describes a refused overwrite: versioning is disabled for
// the user and a current alias for filename already exists. Layout reports
// that condition through ExistsCurrent's boolean result and does not return
// this error itself.
var ErrCurrentExists = errors.New("repo: current alias already exists")

// Layout owns the monotonic upload counter and the filesystem root shared
// by every connection. One Layout is constructed at startup and handed to
// every Connection Supervisor; it has no other mutable state, so it is
// safe to share across goroutines without an external lock. The counter
// mirrors the C original's process-wide `upload_counter`, moved from a
// package-level global onto this explicit context per spec.md's design
// notes.
type Layout struct {
	root    string
	pid     int
	counter atomic.Uint64
	now     func() time.Time // injected for tests; defaults to time.Now
}

// New constructs a Layout rooted at root. pid is recorded once, at
// construction, matching the original daemon's use of getpid() for the
// lifetime of the process.
func New(root string, pid int) *Layout {
	return &Layout{root: root, pid: pid, now: time.Now}
}

// Root returns the repository root directory.
func (l *Layout) Root() string {
	return l.root
}

// Bootstrap creates the shared tmp/ directory and every named repository
// directory under the root, mirroring the original's make_directories.
func (l *Layout) Bootstrap(repositories []string) error {
	if err := os.MkdirAll(filepath.Join(l.root, "tmp"), 0770); err != nil {
		return fmt.Errorf("repo: bootstrap tmp: %w", err)
	}
	for _, r := range repositories {
		if err := os.MkdirAll(filepath.Join(l.root, r), 0770); err != nil {
			return fmt.Errorf("repo: bootstrap repository %q: %w", r, err)
		}
	}
	return nil
}

// nextCounter draws the next value from the process-wide monotonic
// counter; staging paths and versioned filenames each consume one.
func (l *Layout) nextCounter() uint64 {
	return l.counter.Add(1) - 1
}

// StagePath allocates a new temp path of the form <root>/tmp/<pid>.<c> for
// a PUT, where c is drawn from the monotonic counter. The caller is
// responsible for opening it.
func (l *Layout) StagePath() (path string, counter uint64) {
	counter = l.nextCounter()
	path = filepath.Join(l.root, "tmp", fmt.Sprintf("%d.%d", l.pid, counter))
	return
}

// ExistsCurrent reports whether a current alias for filename already
// exists in user's repository. Used by PUT to refuse an overwrite when
// versioning is disabled, before any staging file is created.
func (l *Layout) ExistsCurrent(user registry.User, filename string) (bool, error) {
	path := l.currentAliasPath(user, filename)
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Publish renames the staged file at tempPath into its durable versioned
// name under user's repository and returns that path. The rename is
// atomic within a single filesystem, which is the only durability
// guarantee this layer relies on.
func (l *Layout) Publish(tempPath string, user registry.User, filename string) (string, error) {
	counter := l.nextCounter()
	name := fmt.Sprintf("%d.%d.%d.%s", l.pid, counter, l.now().Unix(), filename)
	versioned := filepath.Join(l.root, user.Repository, name)
	if err := os.Rename(tempPath, versioned); err != nil {
		return "", fmt.Errorf("repo: publish: %w", err)
	}
	return versioned, nil
}

// UpdateCurrentAlias removes any existing current.<filename> entry
// (ignoring its absence) and then creates a fresh symlink pointing at
// versionedPath. The two steps are deliberately not performed atomically
// together: a reader racing this update may briefly observe no alias at
// all. spec.md accepts this as the visibility model, so this function
// does not attempt to paper over it (e.g. via a rename-based atomic
// symlink swap).
func (l *Layout) UpdateCurrentAlias(user registry.User, filename, versionedPath string) error {
	aliasPath := l.currentAliasPath(user, filename)
	if err := os.Remove(aliasPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("repo: remove stale alias: %w", err)
	}
	if err := os.Symlink(versionedPath, aliasPath); err != nil {
		return fmt.Errorf("repo: create alias: %w", err)
	}
	return nil
}

func (l *Layout) currentAliasPath(user registry.User, filename string) string {
	return filepath.Join(l.root, user.Repository, "current."+filename)
}
