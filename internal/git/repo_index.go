package git

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/thiagokokada/gitmeta/internal/events"
	"github.com/thiagokokada/gitmeta/internal/git/index"
)

type ChangedFile = index.ChangedFile

// Index is the working index of a repository.
type Index interface {
	// Refresh recomputes the index; notify controls whether listeners hear
	// about it.
	Refresh(ctx context.Context, notify bool) error
	ChangedFiles() []ChangedFile
	// CommitsBetween lists commits reachable from to but not from from,
	// oldest first.
	CommitsBetween(ctx context.Context, from, to string) ([]string, error)
}

// IndexFactory builds the Index of repo. onChange must be called after every
// notifying refresh.
type IndexFactory func(ctx context.Context, repo *Repository, onChange func()) (Index, error)

// OpenIndex is the default IndexFactory, backed by go-git.
func OpenIndex(_ context.Context, repo *Repository, onChange func()) (Index, error) {
	return index.Open(repo.GitDir(), repo.WorkingDirectory(), onChange)
}

// Index returns the repository index, building it on first use. The first
// refresh is silent since there is no previous state to compare with.
func (r *Repository) Index(ctx context.Context) (Index, error) {
	if idx := r.loadIndex(); idx != nil {
		return idx, nil
	}
	r.indexMu.Lock()
	defer r.indexMu.Unlock()
	if idx := r.loadIndex(); idx != nil {
		return idx, nil
	}
	if r.env.newIndex == nil {
		return nil, ErrNoIndex
	}
	idx, err := r.env.newIndex(ctx, r, r.fireIndexChanged)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	if idx == nil {
		return nil, ErrNoIndex
	}
	if err := idx.Refresh(ctx, false); err != nil {
		return nil, fmt.Errorf("refresh index: %w", err)
	}
	r.index.Store(&idx)
	return idx, nil
}

func (r *Repository) loadIndex() Index {
	if p := r.index.Load(); p != nil {
		return *p
	}
	return nil
}

// RefreshIndex refreshes an already built index and notifies listeners. It
// does nothing when nobody asked for the index yet.
func (r *Repository) RefreshIndex(ctx context.Context) error {
	idx := r.loadIndex()
	if idx == nil {
		return nil
	}
	return idx.Refresh(ctx, true)
}

func (r *Repository) fireIndexChanged() {
	slog.Debug("index changed", slog.String("git_dir", r.gitDir))
	if r.env.events != nil {
		r.env.events.Publish(events.Event[*Repository]{Kind: events.IndexChanged, Subject: r})
	}
}
