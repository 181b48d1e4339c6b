package backend

import (
	"context"
	"strings"
)

// Environment variables git reads to locate the repository and its index.
const (
	EnvGitDir    = "GIT_DIR"
	EnvIndexFile = "GIT_INDEX_FILE"
)

// Executor abstracts running the git executable (or a hook script).
//
// The default implementation shells out through os/exec, but the interface
// lets tests replay canned output without spawning processes.
type Executor interface {
	// Available reports whether the executable can be used at all.
	Available() bool
	// Run executes the command and waits for it. A non-zero exit status is
	// reported through Result.ExitCode; the error is reserved for commands
	// that could not be started or were cancelled.
	Run(ctx context.Context, cmd Command) (Result, error)
}

type Command struct {
	Dir  string
	Env  map[string]string
	Path string // program to run; empty means git
	Args []string
}

type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports a zero exit status.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

type Outcome struct {
	Result Result
	Err    error
}

// Git builds a git command running in dir.
func Git(dir string, args ...string) Command {
	return Command{Dir: dir, Args: args}
}

// Output runs git in dir and returns its trimmed stdout. Failures of any kind
// yield an empty string, mirroring how callers treat "no answer" from git.
func Output(ctx context.Context, e Executor, dir string, args ...string) string {
	res, err := e.Run(ctx, Git(dir, args...))
	if err != nil || !res.Success() {
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}

// Background starts cmd on its own goroutine and delivers the outcome on the
// returned channel, which is closed afterwards.
func Background(ctx context.Context, e Executor, cmd Command) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		res, err := e.Run(ctx, cmd)
		ch <- Outcome{Result: res, Err: err}
	}()
	return ch
}
