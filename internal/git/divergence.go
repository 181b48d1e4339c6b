package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/thiagokokada/gitmeta/internal/git/backend"
	"github.com/thiagokokada/gitmeta/internal/git/index"
	"github.com/thiagokokada/gitmeta/internal/git/refs"
)

// TrackingRemote returns the remote configured as branch.<name>.remote.
func (r *Repository) TrackingRemote(ctx context.Context, branch string) (string, bool) {
	pattern := `^branch\.` + regexp.QuoteMeta(branch) + `\.remote`
	out := backend.Output(ctx, r.env.exec, r.gitDir, "config", "--get-regexp", pattern)
	return parseTrackingRemote(out, branch)
}

func parseTrackingRemote(out, branch string) (string, bool) {
	wantKey := "branch." + branch + ".remote"
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok || key != wantKey {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			return value, true
		}
	}
	return "", false
}

// CommitsAhead lists the commits on the local branch missing from its
// remote-tracking branch. ok is false when the branch tracks no remote or
// either ref does not exist.
func (r *Repository) CommitsAhead(ctx context.Context, branch string) ([]string, bool, error) {
	return r.divergence(ctx, branch, true)
}

// CommitsBehind lists the commits on the remote-tracking branch missing from
// the local branch. ok is false when the branch tracks no remote.
func (r *Repository) CommitsBehind(ctx context.Context, branch string) ([]string, bool, error) {
	return r.divergence(ctx, branch, false)
}

func (r *Repository) divergence(ctx context.Context, branch string, ahead bool) ([]string, bool, error) {
	remote, ok := r.TrackingRemote(ctx, branch)
	if !ok {
		return nil, false, nil
	}
	local := refs.HeadsPrefix + branch
	tracking := refs.RemotesPrefix + remote + "/" + branch

	idx, err := r.Index(ctx)
	if err != nil {
		return nil, true, err
	}
	from, to := local, tracking
	if ahead {
		from, to = tracking, local
	}
	commits, err := idx.CommitsBetween(ctx, from, to)
	if errors.Is(err, index.ErrUnknownRevision) {
		// Configured upstream that was deleted or never fetched.
		slog.Debug("tracking ref missing",
			slog.String("branch", branch),
			slog.String("tracking", tracking),
			slog.Any("error", err),
		)
		return nil, false, nil
	}
	if err != nil {
		return nil, true, fmt.Errorf("commits between %s and %s: %w", from, to, err)
	}
	return commits, true, nil
}
