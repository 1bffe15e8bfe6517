package cli

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/jobd/pkg/model"
)

func newAddWorkerCmd() *cobra.Command {
	var (
		envPairs  []string
		skipCheck bool
	)

	cmd := &cobra.Command{
		Use:   "addworker <id>...",
		Short: "Add workers to the pool",
		Long: "Add one or more workers. Unless --skip-check is given, the daemon probes " +
			"each worker first and rejects the whole request if any is unreachable.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := parseEnv(envPairs)
			if err != nil {
				return err
			}
			resp, err := client.Post("/api/v1/workers", model.AddWorkersRequest{IDs: args, Env: env, SkipCheck: skipCheck})
			if err != nil {
				return fmt.Errorf("add workers: %w", withDetails(err))
			}
			var added []model.Worker
			if err := resp.decode(&added); err != nil {
				return err
			}
			for _, w := range added {
				fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", w.ID, w.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&envPairs, "env", "e", nil, "Environment for jobs on these workers, KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Add without probing reachability")
	return cmd
}

func newRmWorkerCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "rmworker <id>...",
		Short: "Remove workers from the pool",
		Long: "Remove workers. With --mode wait (default) a busy worker finishes its job " +
			"first; with --mode kill its job's process group is sent SIGTERM.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, id := range args {
				resp, err := client.Delete("/api/v1/workers/" + url.PathEscape(id) + "?mode=" + url.QueryEscape(mode))
				if err != nil {
					errs = append(errs, fmt.Errorf("remove %s: %w", id, err))
					continue
				}
				var r struct {
					Deleted bool          `json:"deleted"`
					Worker  *model.Worker `json:"worker"`
				}
				if err := resp.decode(&r); err != nil {
					return err
				}
				if r.Deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
				} else if r.Worker != nil && r.Worker.RunningJob != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s will be removed when job %s exits\n", id, r.Worker.RunningJob.ID)
				}
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "wait", "Removal mode: wait or kill")
	return cmd
}

func newReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <id>",
		Short: "Return a worker with an untracked job to idle",
		Long: "Clear a worker's running job when the daemon does not track its process " +
			"(after a restart or a loadstatus). Refused while the process is live.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/workers/"+url.PathEscape(args[0])+"/release", nil)
			if err != nil {
				return fmt.Errorf("release %s: %w", args[0], err)
			}
			var w model.Worker
			if err := resp.decode(&w); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %s (%s)\n", w.ID, w.Status)
			return nil
		},
	}
}

// parseEnv turns KEY=VALUE pairs into an Env.
func parseEnv(pairs []string) (model.Env, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(model.Env, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env %q: want KEY=VALUE", p)
		}
		env[k] = v
	}
	return env, nil
}

// withDetails appends per-field details of an API error to its message.
func withDetails(err error) error {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || len(apiErr.Details) == 0 {
		return err
	}
	var b strings.Builder
	b.WriteString(apiErr.Error())
	for _, d := range apiErr.Details {
		fmt.Fprintf(&b, "\n  %s: %s", d.Field, d.Message)
	}
	return errors.New(b.String())
}
