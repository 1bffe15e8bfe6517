package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/jobd/pkg/model"
)

func newLogsCmd() *cobra.Command {
	var (
		lines   int
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "logs <job_id>",
		Short: "Print the last lines of a job's log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/jobs/" + url.PathEscape(args[0]) + "/log?lines=" + strconv.Itoa(lines)
			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("get log: %w", err)
			}
			var tail model.LogTail
			if err := resp.decode(&tail); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if verbose {
				fmt.Fprintf(out, "==> %s (%s) <==\n", tail.Path, humanize.Bytes(uint64(tail.Size)))
			}
			for _, l := range tail.Lines {
				fmt.Fprintln(out, l)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print a header with the log path and size")
	return cmd
}
