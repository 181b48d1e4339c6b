package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitmeta/internal/buildinfo"
	"github.com/thiagokokada/gitmeta/internal/config"
	"github.com/thiagokokada/gitmeta/internal/git"
	"github.com/thiagokokada/gitmeta/internal/git/backend"
)

func Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

// app carries what every subcommand needs once flags and config are loaded.
type app struct {
	cfg    config.Config
	mgr    *git.Manager
	stdout io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		verbose    bool
		configPath string
	)
	a := &app{stdout: stdout}

	root := &cobra.Command{
		Use:           "gitmeta",
		Short:         "Inspect cached git repository metadata",
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			slog.SetDefault(slog.New(newLogHandler(stderr, verbose, cfg.LogFormat)))

			mgr, err := git.NewManager(git.Options{
				Executor:    backend.NewCLI(cfg.GitPath),
				CacheSize:   cfg.CacheSize,
				HookTimeout: cfg.Hooks.Timeout.Duration,
			})
			if err != nil {
				return err
			}
			a.mgr = mgr
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/gitmeta/config.toml)")

	root.AddCommand(
		newRefsCmd(a),
		newBranchesCmd(a),
		newHeadCmd(a),
		newStatusCmd(a),
		newDivergenceCmd(a),
		newHookCmd(a),
		newInitCmd(a),
		newWatchCmd(a),
	)
	return root
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// newLogHandler picks the text handler for terminals and JSON otherwise,
// unless the format is forced by configuration.
func newLogHandler(w io.Writer, verbose bool, format string) slog.Handler {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case config.LogFormatJSON:
		return slog.NewJSONHandler(w, opts)
	case config.LogFormatText:
		return slog.NewTextHandler(w, opts)
	}
	if isTerminal(w) {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (a *app) resolve(ctx context.Context, path string) (*git.Repository, error) {
	if !a.mgr.Available() {
		return nil, unavailableError(a.cfg.GitPath)
	}
	repo, ok := a.mgr.Resolve(ctx, path)
	if !ok {
		return nil, fmt.Errorf("%s: not a git repository", path)
	}
	return repo, nil
}

// unavailableError explains why the configured git cannot be used.
func unavailableError(gitPath string) error {
	out, err := backend.GitVersion(gitPath)
	if err != nil {
		return fmt.Errorf("%w: %w", git.ErrUnavailable, err)
	}
	return fmt.Errorf("%w: found %q, need git >= %s", git.ErrUnavailable, out, backend.MinGitVersion())
}

func pathArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return "."
}

var errHookFailed = errors.New("hook failed")
