package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/thiagokokada/gitmeta/internal/events"
	"github.com/thiagokokada/gitmeta/internal/git/backend"
)

// GitDirFor returns the absolute metadata directory of the repository that
// contains location.
func (m *Manager) GitDirFor(ctx context.Context, location string) (string, bool) {
	dir, err := canonicalPath(location)
	if err != nil {
		return "", false
	}
	if backend.Output(ctx, m.env.exec, dir, "rev-parse", "--is-bare-repository") == "true" {
		return dir, true
	}
	out := backend.Output(ctx, m.env.exec, dir, "rev-parse", "--git-dir")
	switch {
	case out == "":
		return "", false
	case out == dotGit:
		return filepath.Join(dir, dotGit), true
	case filepath.IsAbs(out):
		return filepath.Clean(out), true
	default:
		return filepath.Join(dir, out), true
	}
}

// Create runs `git init` at path unless it already belongs to a repository.
// A trailing .git component is ignored.
func (m *Manager) Create(ctx context.Context, path string) error {
	if !m.env.exec.Available() {
		return ErrUnavailable
	}
	dir, err := canonicalPath(path)
	if err != nil {
		return err
	}
	if filepath.Base(dir) == dotGit {
		dir = filepath.Dir(dir)
	}
	if _, ok := m.GitDirFor(ctx, dir); ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	res, err := m.env.exec.Run(ctx, backend.Git(dir, "init"))
	if err != nil {
		return fmt.Errorf("git init: %w", err)
	}
	if !res.Success() {
		return fmt.Errorf("git init: exit status %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Attach resolves location and hands the repository to the host through
// mapFn. On success listeners receive a RepositoryAdded event. ok is false
// when location is not a repository.
func (m *Manager) Attach(ctx context.Context, location string, mapFn func(*Repository) error) (*Repository, bool, error) {
	repo, ok := m.Resolve(ctx, location)
	if !ok {
		return nil, false, nil
	}
	if mapFn != nil {
		if err := mapFn(repo); err != nil {
			return nil, true, fmt.Errorf("%w %s: %w", ErrAttach, location, err)
		}
	}
	m.env.events.Publish(events.Event[*Repository]{Kind: events.RepositoryAdded, Subject: repo})
	return repo, true, nil
}
