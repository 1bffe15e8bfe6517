package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/me/jobd/pkg/model"
)

func newAddJobCmd() *cobra.Command {
	var (
		envPairs []string
		count    int
	)

	cmd := &cobra.Command{
		Use:   "addjob <executable> [args...]",
		Short: "Queue a job",
		Long: "Queue a job. A relative executable that exists here is made absolute, " +
			"and the job runs in the current directory. Flags must come before the executable.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := parseEnv(envPairs)
			if err != nil {
				return err
			}
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			req := model.AddJobRequest{
				JobSpec: model.JobSpec{
					Executable: resolveExecutable(args[0]),
					Args:       args[1:],
					Env:        env,
					Dir:        dir,
				},
				Count: count,
			}
			resp, err := client.Post("/api/v1/jobs", req)
			if err != nil {
				return fmt.Errorf("add job: %w", withDetails(err))
			}
			var r struct {
				Queued  int    `json:"queued"`
				Command string `json:"command"`
			}
			if err := resp.decode(&r); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %d x %s\n", r.Queued, r.Command)
			return nil
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringArrayVarP(&envPairs, "env", "e", nil, "Job environment, KEY=VALUE (repeatable)")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of copies to queue")
	return cmd
}

func newRmJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rmjob <executable> [args...]",
		Short: "Drop every queued job with this command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/jobs/remove", model.RemoveJobRequest{
				Executable: resolveExecutable(args[0]),
				Args:       args[1:],
			})
			if err != nil {
				return fmt.Errorf("remove job: %w", err)
			}
			var r model.RemoveJobResponse
			if err := resp.decode(&r); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d queued job(s)\n", r.Removed)
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// resolveExecutable makes a relative path that exists on disk absolute.
// Anything else is passed through for the daemon to resolve via PATH.
func resolveExecutable(exe string) string {
	if filepath.IsAbs(exe) {
		return exe
	}
	if _, err := os.Stat(exe); err != nil {
		return exe
	}
	abs, err := filepath.Abs(exe)
	if err != nil {
		return exe
	}
	return abs
}
