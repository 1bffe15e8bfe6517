package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/jobd/pkg/model"
)

func newLoadStatusCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "loadstatus <file.json>",
		Short: "Replace the daemon's entire state",
		Long: "Replace workers, running jobs and the queue with the contents of a status " +
			"file, as printed by 'jobctl status -o json'. Running jobs whose process the " +
			"daemon does not track are marked stale. Requires --yes.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("loadstatus replaces the daemon's whole state; rerun with --yes")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var st model.State
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&st); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			resp, err := client.Put("/api/v1/status", st)
			if err != nil {
				return fmt.Errorf("load status: %w", err)
			}
			var loaded model.State
			if err := resp.decode(&loaded); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d worker(s), %d queued job(s)\n", len(loaded.Workers), len(loaded.Queue))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm replacing the state")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon; running jobs keep running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Post("/api/v1/shutdown", nil); err != nil {
				return fmt.Errorf("stop: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "jobd is stopping")
			return nil
		},
	}
}
