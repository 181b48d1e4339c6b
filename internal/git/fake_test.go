package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thiagokokada/gitmeta/internal/events"
	"github.com/thiagokokada/gitmeta/internal/git/backend"
	"github.com/thiagokokada/gitmeta/internal/git/refs"
)

var forEachRefKey = strings.Join(refs.ForEachRefArgs(), " ")

// fakeExecutor answers git commands from canned output keyed by the joined
// argument list. Unknown commands exit with status 1.
type fakeExecutor struct {
	unavailable bool
	runFunc     func(cmd backend.Command) (backend.Result, error)

	mu      sync.Mutex
	outputs map[string]string
	calls   []backend.Command
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{outputs: map[string]string{}}
}

func (f *fakeExecutor) Available() bool { return !f.unavailable }

func (f *fakeExecutor) Run(_ context.Context, cmd backend.Command) (backend.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	out, ok := f.outputs[strings.Join(cmd.Args, " ")]
	runFunc := f.runFunc
	f.mu.Unlock()

	if runFunc != nil {
		return runFunc(cmd)
	}
	if !ok {
		return backend.Result{ExitCode: 1}, nil
	}
	return backend.Result{Stdout: out}, nil
}

func (f *fakeExecutor) set(out string, args ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[strings.Join(args, " ")] = out
}

func (f *fakeExecutor) unset(args ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.outputs, strings.Join(args, " "))
}

func (f *fakeExecutor) count(args ...string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.Join(args, " ")
	n := 0
	for _, c := range f.calls {
		if strings.Join(c.Args, " ") == key {
			n++
		}
	}
	return n
}

func (f *fakeExecutor) commands() []backend.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Command(nil), f.calls...)
}

func (f *fakeExecutor) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

var errFakeRange = errors.New("unexpected CommitsBetween call")

type rangeCall struct {
	from, to string
}

// fakeIndex records refreshes and range queries.
type fakeIndex struct {
	onChange func()
	changed  []ChangedFile

	commitsBetweenFunc func(from, to string) ([]string, error)

	mu        sync.Mutex
	refreshes []bool
	ranges    []rangeCall
}

func (f *fakeIndex) Refresh(_ context.Context, notify bool) error {
	f.mu.Lock()
	f.refreshes = append(f.refreshes, notify)
	f.mu.Unlock()
	if notify && f.onChange != nil {
		f.onChange()
	}
	return nil
}

func (f *fakeIndex) ChangedFiles() []ChangedFile {
	return f.changed
}

func (f *fakeIndex) CommitsBetween(_ context.Context, from, to string) ([]string, error) {
	f.mu.Lock()
	f.ranges = append(f.ranges, rangeCall{from: from, to: to})
	f.mu.Unlock()
	if f.commitsBetweenFunc != nil {
		return f.commitsBetweenFunc(from, to)
	}
	return nil, errFakeRange
}

func (f *fakeIndex) refreshCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.refreshes...)
}

func (f *fakeIndex) rangeCalls() []rangeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rangeCall(nil), f.ranges...)
}

// fakeIndexFactory hands out idx and counts how often it was asked to.
type fakeIndexFactory struct {
	idx *fakeIndex

	mu    sync.Mutex
	built int
}

func (f *fakeIndexFactory) build(_ context.Context, _ *Repository, onChange func()) (Index, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.built++
	f.idx.onChange = onChange
	return f.idx, nil
}

func (f *fakeIndexFactory) builds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built
}

// newTestGitDir creates <tmp>/.git so the working directory is derived
// without asking git.
func newTestGitDir(t *testing.T) string {
	t.Helper()

	gitDir := filepath.Join(t.TempDir(), dotGit)
	require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "hooks"), 0o755))
	return gitDir
}

func newTestRepository(t *testing.T, fe *fakeExecutor, factory IndexFactory) *Repository {
	t.Helper()

	gitDir := newTestGitDir(t)
	env := &repoEnv{
		exec:     fe,
		events:   events.NewBroadcaster[*Repository](),
		newIndex: factory,
	}
	return newRepository(context.Background(), env, gitDir, filepath.Dir(gitDir))
}
