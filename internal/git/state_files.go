package git

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	mergeHeadFile     = "MERGE_HEAD"
	commitMessageFile = "COMMIT_EDITMSG"
	commonDirFile     = "commondir"
)

// commonGitDir returns the metadata dir shared by all worktrees of gitDir.
// Linked worktrees point at it through a "commondir" file, usually holding a
// path relative to gitDir.
func commonGitDir(gitDir string) string {
	data, err := os.ReadFile(filepath.Join(gitDir, commonDirFile))
	if err != nil {
		return gitDir
	}
	dir := strings.TrimSpace(string(data))
	if dir == "" {
		return gitDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(gitDir, dir)
	}
	return filepath.Clean(dir)
}

// HasMerges reports whether a merge is in progress.
func (r *Repository) HasMerges() bool {
	_, err := os.Stat(filepath.Join(r.gitDir, mergeHeadFile))
	return err == nil
}

func (r *Repository) CommitMessageFile() string {
	return filepath.Join(r.gitDir, commitMessageFile)
}

// WriteCommitMessage stores msg where `git commit -F` and hooks expect it.
// Failures are logged only: the file is scratch state.
func (r *Repository) WriteCommitMessage(msg string) {
	path := r.CommitMessageFile()
	if err := os.WriteFile(path, []byte(msg), 0o644); err != nil {
		slog.Error("write commit message", slog.String("path", path), slog.Any("error", err))
	}
}
