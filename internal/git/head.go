package git

import (
	"context"
	"strings"

	"github.com/thiagokokada/gitmeta/internal/git/backend"
	"github.com/thiagokokada/gitmeta/internal/git/refs"
)

// HeadSpec returns the spec HEAD points at: the checked out branch, or HEAD
// itself when detached. The answer is memoized until the next Reload.
func (r *Repository) HeadSpec(ctx context.Context) *refs.RevSpec {
	r.mu.RLock()
	head := r.head
	r.mu.RUnlock()
	if head != nil {
		return head
	}

	head = resolveHead(ctx, r.env.exec, r.gitDir)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.head == nil {
		r.head = head
	}
	return r.head
}

func resolveHead(ctx context.Context, e backend.Executor, dir string) *refs.RevSpec {
	target := backend.Output(ctx, e, dir, "symbolic-ref", "-q", refs.HeadName)
	if strings.HasPrefix(target, refs.HeadsPrefix) {
		return refs.ForRefName(target)
	}
	return refs.DetachedHead()
}

// CurrentBranchName asks `git branch` for the checked out branch. A detached
// HEAD is reported the way git prints it, e.g. "(HEAD detached at 1a2b3c4)".
func (r *Repository) CurrentBranchName(ctx context.Context) (string, bool) {
	out := backend.Output(ctx, r.env.exec, r.gitDir, "branch", "--no-color")
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, "*"); ok {
			return strings.TrimSpace(name), true
		}
	}
	return "", false
}

// ParseReference resolves rev to an object id with `rev-parse --verify`.
func (r *Repository) ParseReference(ctx context.Context, rev string) (string, bool) {
	res, err := r.env.exec.Run(ctx, backend.Git(r.commandDir(), "rev-parse", "--verify", rev))
	if err != nil || !res.Success() {
		return "", false
	}
	id := strings.TrimSpace(res.Stdout)
	return id, id != ""
}
