// Package index provides the working index of a repository on top of go-git:
// the list of changed files and commit range queries.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// ErrUnknownRevision is returned by range queries naming a ref that does not
// exist.
var ErrUnknownRevision = errors.New("unknown revision")

// ChangedFile is a path (slash separated, relative to the working directory)
// whose staged or working tree state differs from HEAD.
type ChangedFile struct {
	Path     string
	Staging  gitlib.StatusCode
	Worktree gitlib.StatusCode
}

// Status renders the two-letter porcelain code, e.g. "M " or "??".
func (f ChangedFile) Status() string {
	return string([]byte{byte(f.Staging), byte(f.Worktree)})
}

func (f ChangedFile) Staged() bool {
	return f.Staging != gitlib.Unmodified && f.Staging != gitlib.Untracked
}

func (f ChangedFile) Untracked() bool {
	return f.Worktree == gitlib.Untracked
}

// Worktree is the go-git backed index of one repository.
type Worktree struct {
	repo     *gitlib.Repository
	onChange func()

	mu      sync.RWMutex
	changed []ChangedFile
}

// Open opens the repository owning workDir, or the bare repository at gitDir
// when there is no working directory.
func Open(gitDir, workDir string, onChange func()) (*Worktree, error) {
	var (
		repo *gitlib.Repository
		err  error
	)
	if workDir != "" {
		repo, err = gitlib.PlainOpenWithOptions(workDir, &gitlib.PlainOpenOptions{
			DetectDotGit:          true,
			// Linked worktrees keep refs and objects in the main metadata dir.
			EnableDotGitCommonDir: true,
		})
	} else {
		repo, err = gitlib.PlainOpen(gitDir)
	}
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return New(repo, onChange), nil
}

// New wraps an already opened repository. onChange, if set, runs after every
// notifying Refresh.
func New(repo *gitlib.Repository, onChange func()) *Worktree {
	return &Worktree{repo: repo, onChange: onChange}
}

// Refresh recomputes the changed files. When notify is set the change
// callback runs afterwards.
func (w *Worktree) Refresh(ctx context.Context, notify bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	changed, err := w.status()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.changed = changed
	w.mu.Unlock()

	if notify && w.onChange != nil {
		w.onChange()
	}
	return nil
}

func (w *Worktree) status() ([]ChangedFile, error) {
	wt, err := w.repo.Worktree()
	if errors.Is(err, gitlib.ErrIsBareRepository) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("worktree status: %w", err)
	}
	changed := make([]ChangedFile, 0, len(status))
	for path, st := range status {
		if st.Staging == gitlib.Unmodified && st.Worktree == gitlib.Unmodified {
			continue
		}
		changed = append(changed, ChangedFile{Path: path, Staging: st.Staging, Worktree: st.Worktree})
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].Path < changed[j].Path })
	return changed, nil
}

// ChangedFiles returns the result of the last Refresh.
func (w *Worktree) ChangedFiles() []ChangedFile {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.changed)
}

// CommitsBetween lists the commits reachable from to but not from from,
// oldest first, like `git rev-list from..to`.
func (w *Worktree) CommitsBetween(ctx context.Context, from, to string) ([]string, error) {
	fromHash, err := w.resolve(from)
	if err != nil {
		return nil, err
	}
	toHash, err := w.resolve(to)
	if err != nil {
		return nil, err
	}
	if fromHash == toHash {
		return nil, nil
	}

	exclude := make(map[plumbing.Hash]struct{})
	fromIter, err := w.repo.Log(&gitlib.LogOptions{From: fromHash})
	if err != nil {
		return nil, fmt.Errorf("log %s: %w", from, err)
	}
	err = fromIter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		exclude[c.Hash] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}

	toIter, err := w.repo.Log(&gitlib.LogOptions{From: toHash})
	if err != nil {
		return nil, fmt.Errorf("log %s: %w", to, err)
	}
	var commits []string
	err = toIter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, excluded := exclude[c.Hash]; excluded {
			return nil
		}
		commits = append(commits, c.Hash.String())
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, err
	}
	slices.Reverse(commits)
	slog.Debug("commit range", slog.String("from", from), slog.String("to", to), slog.Int("count", len(commits)))
	return commits, nil
}

func (w *Worktree) resolve(rev string) (plumbing.Hash, error) {
	h, err := w.repo.ResolveRevision(plumbing.Revision(rev))
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, fmt.Errorf("%w %s", ErrUnknownRevision, rev)
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve %s: %w", rev, err)
	}
	return *h, nil
}
