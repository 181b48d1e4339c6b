package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiagokokada/gitmeta/internal/events"
	"github.com/thiagokokada/gitmeta/internal/git/backend"
	"github.com/thiagokokada/gitmeta/internal/git/refs"
)

// discoveryExecutor answers `rev-parse --git-dir` per directory and treats
// every other command as failing.
type discoveryExecutor struct {
	fakeExecutor
	gitDirs map[string]string
	bare    map[string]bool
}

func newDiscoveryExecutor() *discoveryExecutor {
	d := &discoveryExecutor{
		fakeExecutor: fakeExecutor{outputs: map[string]string{}},
		gitDirs:      map[string]string{},
		bare:         map[string]bool{},
	}
	d.runFunc = d.answer
	return d
}

func (d *discoveryExecutor) answer(cmd backend.Command) (backend.Result, error) {
	switch strings.Join(cmd.Args, " ") {
	case "rev-parse --is-bare-repository":
		if d.bare[cmd.Dir] {
			return backend.Result{Stdout: "true\n"}, nil
		}
		if _, ok := d.gitDirs[cmd.Dir]; ok {
			return backend.Result{Stdout: "false\n"}, nil
		}
	case "rev-parse --git-dir":
		if out, ok := d.gitDirs[cmd.Dir]; ok {
			return backend.Result{Stdout: out + "\n"}, nil
		}
	case forEachRefKey:
		return backend.Result{Stdout: "refs/heads/main commit abc123\n"}, nil
	}
	return backend.Result{ExitCode: 128, Stderr: "fatal: not a git repository"}, nil
}

func newTestManager(t *testing.T, fe backend.Executor, size int) *Manager {
	t.Helper()

	m, err := NewManager(Options{Executor: fe, CacheSize: size})
	require.NoError(t, err)
	return m
}

func TestResolveUnavailable(t *testing.T) {
	t.Parallel()

	d := newDiscoveryExecutor()
	d.unavailable = true
	m := newTestManager(t, d, 0)

	repo, ok := m.Resolve(context.Background(), t.TempDir())
	assert.False(t, ok)
	assert.Nil(t, repo)
	assert.Empty(t, d.commands())
	assert.False(t, m.Available())
}

func TestResolveNotARepository(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newDiscoveryExecutor(), 0)
	repo, ok := m.Resolve(context.Background(), t.TempDir())
	assert.False(t, ok)
	assert.Nil(t, repo)
	assert.Zero(t, m.Len())

	_, ok = m.Resolve(context.Background(), "")
	assert.False(t, ok)
}

func TestGitDirFor(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	elsewhere := filepath.Join(t.TempDir(), "store.git")
	tests := []struct {
		name   string
		setup  func(d *discoveryExecutor, loc string)
		want   func(loc string) string
		wantOK bool
	}{
		{
			name:   "dot_git",
			setup:  func(d *discoveryExecutor, loc string) { d.gitDirs[loc] = ".git" },
			want:   func(loc string) string { return filepath.Join(loc, ".git") },
			wantOK: true,
		},
		{
			name:   "bare",
			setup:  func(d *discoveryExecutor, loc string) { d.bare[loc] = true },
			want:   func(loc string) string { return loc },
			wantOK: true,
		},
		{
			name:   "relative",
			setup:  func(d *discoveryExecutor, loc string) { d.gitDirs[loc] = "../.git" },
			want:   func(loc string) string { return filepath.Join(filepath.Dir(loc), ".git") },
			wantOK: true,
		},
		{
			name:   "absolute",
			setup:  func(d *discoveryExecutor, loc string) { d.gitDirs[loc] = elsewhere },
			want:   func(string) string { return elsewhere },
			wantOK: true,
		},
		{
			name:   "not_a_repository",
			setup:  func(*discoveryExecutor, string) {},
			want:   func(string) string { return "" },
			wantOK: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			loc := filepath.Join(root, tt.name, "sub")
			d := newDiscoveryExecutor()
			tt.setup(d, loc)
			m := newTestManager(t, d, 0)

			got, ok := m.GitDirFor(context.Background(), loc)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want(loc), got)
		})
	}
}

func TestResolveConcurrentSameLocation(t *testing.T) {
	t.Parallel()

	loc := t.TempDir()
	d := newDiscoveryExecutor()
	d.gitDirs[loc] = ".git"
	m := newTestManager(t, d, 0)

	var wg sync.WaitGroup
	got := make([]*Repository, 32)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			repo, ok := m.Resolve(context.Background(), loc)
			assert.True(t, ok)
			got[i] = repo
		}(i)
	}
	wg.Wait()

	for _, repo := range got {
		assert.Same(t, got[0], repo)
	}
	assert.Equal(t, 1, d.count(refs.ForEachRefArgs()...), "repository constructed once")
	assert.Equal(t, filepath.Join(loc, ".git"), got[0].GitDir())
	assert.Equal(t, 1, m.Len())
}

func TestResolveAliasesSameGitDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	sub := filepath.Join(root, "pkg", "deep")
	d := newDiscoveryExecutor()
	d.gitDirs[root] = ".git"
	d.gitDirs[sub] = filepath.Join(root, ".git")
	m := newTestManager(t, d, 0)
	ctx := context.Background()

	a, ok := m.Resolve(ctx, root)
	require.True(t, ok)
	b, ok := m.Resolve(ctx, sub+string(filepath.Separator))
	require.True(t, ok)

	assert.Same(t, a, b)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 1, d.count(refs.ForEachRefArgs()...))
}

func TestResolveLRUEviction(t *testing.T) {
	t.Parallel()

	d := newDiscoveryExecutor()
	var locs []string
	for i := 0; i < 3; i++ {
		loc := filepath.Join(t.TempDir(), fmt.Sprintf("repo%d", i))
		d.gitDirs[loc] = ".git"
		locs = append(locs, loc)
	}
	m := newTestManager(t, d, 2)
	ctx := context.Background()

	first, ok := m.Resolve(ctx, locs[0])
	require.True(t, ok)
	_, ok = m.Resolve(ctx, locs[1])
	require.True(t, ok)
	_, ok = m.Resolve(ctx, locs[2])
	require.True(t, ok)
	assert.Equal(t, 2, m.Len())

	again, ok := m.Resolve(ctx, locs[0])
	require.True(t, ok)
	assert.NotSame(t, first, again, "evicted entries are rebuilt")
	assert.True(t, first.Equal(again))
}

func TestForgetAndPurge(t *testing.T) {
	t.Parallel()

	loc := t.TempDir()
	other := t.TempDir()
	d := newDiscoveryExecutor()
	d.gitDirs[loc] = ".git"
	d.gitDirs[other] = ".git"
	m := newTestManager(t, d, 0)
	ctx := context.Background()

	first, _ := m.Resolve(ctx, loc)
	m.Resolve(ctx, other)
	require.Equal(t, 2, m.Len())

	assert.True(t, m.Forget(loc))
	assert.False(t, m.Forget(loc))
	assert.Equal(t, 1, m.Len())

	second, ok := m.Resolve(ctx, loc)
	require.True(t, ok)
	assert.NotSame(t, first, second)

	m.Purge()
	assert.Zero(t, m.Len())
}

func TestCreate(t *testing.T) {
	t.Parallel()

	t.Run("existing_repository", func(t *testing.T) {
		t.Parallel()

		loc := t.TempDir()
		d := newDiscoveryExecutor()
		d.gitDirs[loc] = ".git"
		m := newTestManager(t, d, 0)

		require.NoError(t, m.Create(context.Background(), filepath.Join(loc, ".git")))
		assert.Zero(t, d.count("init"))
	})

	t.Run("new_repository", func(t *testing.T) {
		t.Parallel()

		loc := filepath.Join(t.TempDir(), "fresh")
		d := newDiscoveryExecutor()
		m := newTestManager(t, d, 0)
		prev := d.runFunc
		d.runFunc = func(cmd backend.Command) (backend.Result, error) {
			if len(cmd.Args) == 1 && cmd.Args[0] == "init" {
				return backend.Result{}, nil
			}
			return prev(cmd)
		}

		require.NoError(t, m.Create(context.Background(), loc))
		assert.Equal(t, 1, d.count("init"))
		info, err := os.Stat(loc)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		for _, c := range d.commands() {
			if c.Args[0] == "init" {
				assert.Equal(t, loc, c.Dir)
			}
		}
	})

	t.Run("init_fails", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t, newDiscoveryExecutor(), 0)
		err := m.Create(context.Background(), t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "git init")
	})

	t.Run("unavailable", func(t *testing.T) {
		t.Parallel()

		d := newDiscoveryExecutor()
		d.unavailable = true
		m := newTestManager(t, d, 0)
		assert.ErrorIs(t, m.Create(context.Background(), t.TempDir()), ErrUnavailable)
	})
}

func TestAttach(t *testing.T) {
	t.Parallel()

	loc := t.TempDir()
	d := newDiscoveryExecutor()
	d.gitDirs[loc] = ".git"
	m := newTestManager(t, d, 0)
	ctx := context.Background()

	var added []*Repository
	var mu sync.Mutex
	sub := m.Events().Subscribe(func(ev events.Event[*Repository]) {
		if ev.Kind == events.RepositoryAdded {
			mu.Lock()
			added = append(added, ev.Subject)
			mu.Unlock()
		}
	})
	defer sub.Unsubscribe()

	denied := errors.New("provider refused mapping")
	repo, ok, err := m.Attach(ctx, loc, func(*Repository) error { return denied })
	assert.True(t, ok)
	assert.Nil(t, repo)
	require.Error(t, err)
	assert.ErrorIs(t, err, denied)
	assert.ErrorIs(t, err, ErrAttach)
	assert.Empty(t, added)

	var mapped *Repository
	repo, ok, err = m.Attach(ctx, loc, func(r *Repository) error {
		mapped = r
		return nil
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, repo, mapped)
	require.Len(t, added, 1)
	assert.Same(t, repo, added[0])

	repo, ok, err = m.Attach(ctx, t.TempDir(), nil)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, repo)
}
