package git

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thiagokokada/gitmeta/internal/events"
	"github.com/thiagokokada/gitmeta/internal/git/backend"
	"github.com/thiagokokada/gitmeta/internal/git/refs"
)

const dotGit = ".git"

// repoEnv is shared by every Repository a Manager creates.
type repoEnv struct {
	exec        backend.Executor
	events      *events.Broadcaster[*Repository]
	newIndex    IndexFactory
	hookTimeout time.Duration
}

// Repository is the cached model of one git metadata directory: its refs,
// the branches offered for browsing, HEAD and a lazily built index.
type Repository struct {
	env    *repoEnv
	gitDir string
	// commonDir holds what linked worktrees share with the main checkout,
	// hooks included. Equal to gitDir outside linked worktrees.
	commonDir string
	// location the repository was first resolved from, used to find the
	// working directory of non-standard layouts.
	location string
	workDir  string

	branches *refs.Registry

	mu       sync.RWMutex
	refsByID map[string][]refs.Ref
	head     *refs.RevSpec
	current  *refs.RevSpec

	dirty atomic.Bool

	indexMu sync.Mutex
	index   atomic.Pointer[Index]
}

func newRepository(ctx context.Context, env *repoEnv, gitDir, location string) *Repository {
	r := &Repository{
		env:       env,
		gitDir:    gitDir,
		commonDir: commonGitDir(gitDir),
		location:  location,
		branches:  refs.NewRegistry(),
		refsByID:  map[string][]refs.Ref{},
	}
	r.workDir = r.lookupWorkingDirectory(ctx)
	if _, err := r.Reload(ctx); err != nil {
		slog.Error("initial reload failed", slog.String("git_dir", gitDir), slog.Any("error", err))
		r.MarkDirty()
	}
	current := r.AddBranch(ctx, r.HeadSpec(ctx))
	r.mu.Lock()
	r.current = current
	r.mu.Unlock()
	return r
}

// GitDir returns the absolute path of the metadata directory.
func (r *Repository) GitDir() string {
	return r.gitDir
}

// WorkingDirectory returns the checkout root, or "" for bare repositories.
func (r *Repository) WorkingDirectory() string {
	return r.workDir
}

func (r *Repository) Equal(other *Repository) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.gitDir == other.gitDir
}

func (r *Repository) String() string {
	return r.gitDir
}

// Branches returns the known revision specs in registration order.
func (r *Repository) Branches() []*refs.RevSpec {
	return r.branches.All()
}

// RefsByID returns a copy of the object id to refs mapping.
func (r *Repository) RefsByID() map[string][]refs.Ref {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]refs.Ref, len(r.refsByID))
	for id, list := range r.refsByID {
		out[id] = append([]refs.Ref(nil), list...)
	}
	return out
}

// CurrentBranch is the registered spec for HEAD as of construction.
func (r *Repository) CurrentBranch() *refs.RevSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Reload lists every ref again and rebuilds the refs mapping. It reports
// whether a spec unknown to the branch registry showed up.
func (r *Repository) Reload(ctx context.Context) (bool, error) {
	r.mu.Lock()
	r.head = nil
	r.mu.Unlock()

	res, err := r.env.exec.Run(ctx, backend.Git(r.gitDir, refs.ForEachRefArgs()...))
	if err != nil {
		return false, fmt.Errorf("git for-each-ref: %w", err)
	}
	out := res.Stdout
	if !res.Success() {
		slog.Debug("for-each-ref failed, treating repository as empty",
			slog.String("git_dir", r.gitDir),
			slog.Int("exit_code", res.ExitCode),
			slog.String("stderr", res.Stderr),
		)
		out = ""
	}

	parsed := refs.Parse(out)
	changed := false
	for _, ref := range parsed {
		if _, added := r.branches.Add(refs.ForRef(ref)); added {
			changed = true
		}
	}
	r.branches.Add(refs.AllBranches())
	r.branches.Add(refs.LocalBranches())

	byID := refs.Group(parsed)
	r.mu.Lock()
	r.refsByID = byID
	r.mu.Unlock()

	slog.Debug("reloaded refs",
		slog.String("git_dir", r.gitDir),
		slog.Int("refs", len(parsed)),
		slog.Bool("changed", changed),
	)
	return changed, nil
}

// AddBranch registers spec and returns the canonical instance. An empty spec
// stands for HEAD.
func (r *Repository) AddBranch(ctx context.Context, spec *refs.RevSpec) *refs.RevSpec {
	if spec == nil || spec.IsEmpty() {
		spec = r.HeadSpec(ctx)
	}
	canonical, _ := r.branches.Add(spec)
	return canonical
}

// ChangedFileFor returns the index entry for an absolute filesystem path.
func (r *Repository) ChangedFileFor(ctx context.Context, path string) (ChangedFile, bool) {
	if r.workDir == "" {
		return ChangedFile{}, false
	}
	idx, err := r.Index(ctx)
	if err != nil {
		slog.Debug("index unavailable", slog.String("git_dir", r.gitDir), slog.Any("error", err))
		return ChangedFile{}, false
	}
	target := filepath.Clean(path)
	for _, f := range idx.ChangedFiles() {
		if filepath.Join(r.workDir, filepath.FromSlash(f.Path)) == target {
			return f, true
		}
	}
	return ChangedFile{}, false
}

func (r *Repository) lookupWorkingDirectory(ctx context.Context) string {
	if filepath.Base(r.gitDir) == dotGit {
		return filepath.Dir(r.gitDir)
	}
	dir := r.location
	if dir == "" {
		dir = r.gitDir
	}
	if backend.Output(ctx, r.env.exec, dir, "rev-parse", "--is-inside-work-tree") != "true" {
		return ""
	}
	top := backend.Output(ctx, r.env.exec, dir, "rev-parse", "--show-toplevel")
	if top == "" {
		return ""
	}
	return filepath.Clean(top)
}

// commandDir is where commands that need a checkout run; bare repositories
// fall back to the metadata directory.
func (r *Repository) commandDir() string {
	if r.workDir != "" {
		return r.workDir
	}
	return r.gitDir
}
