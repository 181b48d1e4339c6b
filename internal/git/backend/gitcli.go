package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
)

const defaultGitPath = "git"

type gitCLI struct {
	path string

	// resolved and gateErr are written once by probe.
	gateOnce sync.Once
	resolved string
	gateErr  error
}

// NewCLI returns an Executor running the git binary found at gitPath (looked
// up in PATH when it is not absolute). An empty gitPath means "git".
func NewCLI(gitPath string) Executor {
	if strings.TrimSpace(gitPath) == "" {
		gitPath = defaultGitPath
	}
	return &gitCLI{path: gitPath}
}

// Available reports whether git can be found and is recent enough. The probe
// runs once per executor.
func (g *gitCLI) Available() bool {
	g.gateOnce.Do(g.probe)
	if g.gateErr != nil {
		slog.Debug("git executable unavailable", slog.Any("error", g.gateErr))
		return false
	}
	return true
}

func (g *gitCLI) probe() {
	resolved, err := exec.LookPath(g.path)
	if err != nil {
		g.gateErr = fmt.Errorf("git not found: %w", err)
		return
	}
	g.resolved = resolved
	g.gateErr = ensureMinGitVersion(resolved)
}

// binary is the git executable to run, resolved through PATH when found.
func (g *gitCLI) binary() string {
	g.gateOnce.Do(g.probe)
	if g.resolved != "" {
		return g.resolved
	}
	return g.path
}

func (g *gitCLI) Run(ctx context.Context, c Command) (Result, error) {
	program := c.Path
	if program == "" {
		program = g.binary()
	}
	cmd := exec.CommandContext(ctx, program, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), c.Env)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("exec", slog.String("dir", c.Dir), slog.String("cmd", program), slog.Any("args", c.Args))
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		if stderr.Len() > 0 {
			return res, fmt.Errorf("%s: %v: %s", commandName(program, c.Args), err, strings.TrimSpace(stderr.String()))
		}
		return res, fmt.Errorf("%s: %w", commandName(program, c.Args), err)
	}
	return res, nil
}

// mergeEnv overlays overrides on base; keys in overrides replace existing ones.
func mergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}

func commandName(program string, args []string) string {
	if len(args) == 0 {
		return program
	}
	return program + " " + args[0]
}
