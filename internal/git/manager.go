package git

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/thiagokokada/gitmeta/internal/events"
	"github.com/thiagokokada/gitmeta/internal/git/backend"
)

const DefaultCacheSize = 16

type Options struct {
	// Executor runs git; defaults to the git found in PATH.
	Executor backend.Executor
	// CacheSize bounds the number of cached locations.
	CacheSize int
	// IndexFactory builds repository indexes; defaults to OpenIndex.
	IndexFactory IndexFactory
	// HookTimeout, when positive, bounds each hook run.
	HookTimeout time.Duration
}

// Manager hands out one Repository per metadata directory and remembers which
// filesystem locations resolved to it. It owns the event broadcaster its
// repositories publish on.
type Manager struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *Repository]
	env   *repoEnv
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Executor == nil {
		opts.Executor = backend.NewCLI("")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.IndexFactory == nil {
		opts.IndexFactory = OpenIndex
	}
	cache, err := lru.NewWithEvict(opts.CacheSize, func(location string, repo *Repository) {
		slog.Debug("evicted repository", slog.String("location", location), slog.String("git_dir", repo.GitDir()))
	})
	if err != nil {
		return nil, fmt.Errorf("repository cache: %w", err)
	}
	return &Manager{
		cache: cache,
		env: &repoEnv{
			exec:        opts.Executor,
			events:      events.NewBroadcaster[*Repository](),
			newIndex:    opts.IndexFactory,
			hookTimeout: opts.HookTimeout,
		},
	}, nil
}

// Events is where index changes and attached repositories are announced.
func (m *Manager) Events() *events.Broadcaster[*Repository] {
	return m.env.events
}

// Available reports whether git can be used at all.
func (m *Manager) Available() bool {
	return m.env.exec.Available()
}

// Resolve returns the repository containing location. ok is false when git is
// unavailable or location is not inside a repository.
func (m *Manager) Resolve(ctx context.Context, location string) (*Repository, bool) {
	if !m.env.exec.Available() {
		return nil, false
	}
	key, err := canonicalPath(location)
	if err != nil {
		slog.Debug("resolve repository", slog.String("location", location), slog.Any("error", err))
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if repo, ok := m.cache.Get(key); ok {
		return repo, true
	}
	gitDir, ok := m.GitDirFor(ctx, key)
	if !ok {
		return nil, false
	}
	if repo, ok := m.findByGitDirLocked(gitDir); ok {
		m.cache.Add(key, repo)
		return repo, true
	}
	repo := newRepository(ctx, m.env, gitDir, key)
	m.cache.Add(key, repo)
	slog.Debug("cached repository", slog.String("location", key), slog.String("git_dir", gitDir))
	return repo, true
}

func (m *Manager) findByGitDirLocked(gitDir string) (*Repository, bool) {
	for _, repo := range m.cache.Values() {
		if repo.GitDir() == gitDir {
			return repo, true
		}
	}
	return nil, false
}

// Forget drops the cached entry for location. The Repository itself stays
// usable by whoever still holds it.
func (m *Manager) Forget(location string) bool {
	key, err := canonicalPath(location)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Remove(key)
}

func (m *Manager) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Purge()
}

// Len is the number of cached locations, aliases included.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}

func canonicalPath(location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("empty location")
	}
	return filepath.Abs(location)
}
