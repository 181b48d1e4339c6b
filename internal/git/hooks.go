package git

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/thiagokokada/gitmeta/internal/git/backend"
)

// HookPath returns where git looks for the named hook. Linked worktrees use
// the hooks of the main metadata dir.
func (r *Repository) HookPath(name string) string {
	return filepath.Join(r.commonDir, "hooks", name)
}

// ExecuteHook runs the named hook and reports whether it succeeded. A hook
// that is missing, not a regular file or not executable counts as passed.
func (r *Repository) ExecuteHook(ctx context.Context, name string, args ...string) bool {
	path := r.HookPath(name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return true
	}
	if info.Mode().Perm()&0o111 == 0 {
		slog.Debug("hook not executable, skipping", slog.String("hook", path))
		return true
	}

	if r.env.hookTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.env.hookTimeout)
		defer cancel()
	}
	res, err := r.env.exec.Run(ctx, backend.Command{
		Dir:  r.commandDir(),
		Path: path,
		Args: args,
		Env: map[string]string{
			backend.EnvGitDir:    r.gitDir,
			backend.EnvIndexFile: filepath.Join(r.gitDir, "index"),
		},
	})
	if err != nil {
		slog.Error("run hook", slog.String("hook", path), slog.Any("error", err))
		return false
	}
	if !res.Success() {
		slog.Debug("hook failed",
			slog.String("hook", path),
			slog.Int("exit_code", res.ExitCode),
			slog.String("stderr", res.Stderr),
		)
	}
	return res.Success()
}
