package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thiagokokada/gitmeta/internal/events"
	"github.com/thiagokokada/gitmeta/internal/git"
	"github.com/thiagokokada/gitmeta/internal/git/refs"
	"github.com/thiagokokada/gitmeta/internal/watch"
)

const maxConcurrentResolves = 8

func newRefsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refs [path...]",
		Short: "List refs grouped by commit",
		Example: `  gitmeta refs
  gitmeta refs ~/src/a ~/src/b`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"."}
			}
			repos, err := a.resolveAll(cmd.Context(), args)
			if err != nil {
				return err
			}
			for i, repo := range repos {
				if len(repos) > 1 {
					if i > 0 {
						fmt.Fprintln(a.stdout)
					}
					fmt.Fprintf(a.stdout, "# %s\n", repo.GitDir())
				}
				printRefs(a.stdout, repo.RefsByID())
			}
			return nil
		},
	}
}

// resolveAll resolves paths concurrently, keeping the argument order.
func (a *app) resolveAll(ctx context.Context, paths []string) ([]*git.Repository, error) {
	repos := make([]*git.Repository, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentResolves)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			repo, err := a.resolve(ctx, path)
			if err != nil {
				return err
			}
			repos[i] = repo
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return repos, nil
}

func printRefs(w io.Writer, byID map[string][]refs.Ref) {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		names := make([]string, 0, len(byID[id]))
		for _, ref := range byID[id] {
			names = append(names, ref.Short())
		}
		fmt.Fprintf(w, "%s %s\n", id, strings.Join(names, " "))
	}
}

func newBranchesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "branches [path]",
		Short: "List known branch specs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.resolve(cmd.Context(), pathArg(args, 0))
			if err != nil {
				return err
			}
			current := repo.CurrentBranch()
			for _, spec := range repo.Branches() {
				marker := " "
				if spec.Equal(current) {
					marker = "*"
				}
				fmt.Fprintf(a.stdout, "%s %s\n", marker, spec)
			}
			return nil
		},
	}
}

func newHeadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "head [path]",
		Short: "Show what HEAD points at",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := a.resolve(ctx, pathArg(args, 0))
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, repo.HeadSpec(ctx))
			if id, ok := repo.ParseReference(ctx, refs.HeadName); ok {
				fmt.Fprintln(a.stdout, id)
			}
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status [path]",
		Short: "List changed files in the working tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := a.resolve(ctx, pathArg(args, 0))
			if err != nil {
				return err
			}
			if name, ok := repo.CurrentBranchName(ctx); ok {
				fmt.Fprintf(a.stdout, "On branch %s\n", name)
			}
			if repo.HasMerges() {
				fmt.Fprintln(a.stdout, "Merge in progress")
			}
			idx, err := repo.Index(ctx)
			if err != nil {
				return err
			}
			for _, f := range idx.ChangedFiles() {
				fmt.Fprintf(a.stdout, "%s %s\n", f.Status(), f.Path)
			}
			return nil
		},
	}
}

func newDivergenceCmd(a *app) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "divergence <branch> [path]",
		Short: "Count commits ahead of and behind the tracking branch",
		Args:  cobra.RangeArgs(1, 2),
		Example: `  gitmeta divergence main
  gitmeta divergence feature --commits`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := a.resolve(ctx, pathArg(args, 1))
			if err != nil {
				return err
			}
			branch := args[0]
			ahead, ok, err := repo.CommitsAhead(ctx, branch)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(a.stdout, "%s has no tracking branch\n", branch)
				return nil
			}
			behind, _, err := repo.CommitsBehind(ctx, branch)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "ahead %d, behind %d\n", len(ahead), len(behind))
			if verbose {
				for _, id := range ahead {
					fmt.Fprintf(a.stdout, "> %s\n", id)
				}
				for _, id := range behind {
					fmt.Fprintf(a.stdout, "< %s\n", id)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verbose, "commits", false, "list the diverging commits")
	return cmd
}

func newHookCmd(a *app) *cobra.Command {
	var (
		repoPath string
		message  string
	)
	cmd := &cobra.Command{
		Use:   "hook <name> [args...]",
		Short: "Run a repository hook",
		Args:  cobra.MinimumNArgs(1),
		Example: `  gitmeta hook pre-commit
  gitmeta hook commit-msg --message "fix: typo"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := a.resolve(ctx, repoPath)
			if err != nil {
				return err
			}
			hookArgs := args[1:]
			if cmd.Flags().Changed("message") {
				repo.WriteCommitMessage(message)
				hookArgs = append([]string{repo.CommitMessageFile()}, hookArgs...)
			}
			if !repo.ExecuteHook(ctx, args[0], hookArgs...) {
				return fmt.Errorf("%w: %s", errHookFailed, args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&repoPath, "repo", "C", ".", "repository path")
	cmd.Flags().StringVarP(&message, "message", "m", "", "write the commit message file and pass its path to the hook")
	return cmd
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init <path>",
		Short: "Create a repository unless one already exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.mgr.Create(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Repository ready at %s\n", args[0])
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [path]",
		Short: "Follow ref and index changes until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !a.mgr.Available() {
				return unavailableError(a.cfg.GitPath)
			}
			sub := a.mgr.Events().Subscribe(func(ev events.Event[*git.Repository]) {
				fmt.Fprintf(a.stdout, "%s %s\n", ev.Kind, ev.Subject.GitDir())
			})
			defer sub.Unsubscribe()

			var w *watch.Watcher
			path := pathArg(args, 0)
			repo, ok, err := a.mgr.Attach(ctx, path, func(repo *git.Repository) error {
				var err error
				w, err = watch.New(repo, a.cfg.WatchDebounce.Duration, func(change watch.Change) {
					if change != watch.ChangeRefs {
						return
					}
					changed, err := repo.ReloadIfDirty(ctx)
					if err != nil {
						slog.Error("reload failed", slog.String("repo", repo.GitDir()), slog.Any("error", err))
						return
					}
					if changed {
						fmt.Fprintf(a.stdout, "refs-changed %s\n", repo.GitDir())
					}
				})
				return err
			})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: not a git repository", path)
			}
			defer w.Close()

			// Build the index up front so the watcher's refreshes notify.
			if _, err := repo.Index(ctx); err != nil {
				slog.Warn("index unavailable", slog.String("repo", repo.GitDir()), slog.Any("error", err))
			}
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
