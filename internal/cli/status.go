package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/me/jobd/pkg/model"
)

func newStatusCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workers, running jobs and the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/status")
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}
			var st model.State
			if err := resp.decode(&st); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch output {
			case "json":
				return printJSON(out, st)
			case "table":
				return printStatusTable(out, &st)
			case "auto", "":
				if isTerminal(out) {
					return printStatusTable(out, &st)
				}
				return printJSON(out, st)
			default:
				return fmt.Errorf("unknown output format %q (want auto, table or json)", output)
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "auto", "Output format: auto, table, json")
	return cmd
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStatusTable(w io.Writer, st *model.State) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "WORKERS (%d)\n", len(st.Workers))
	if len(st.Workers) > 0 {
		fmt.Fprintln(tw, "ID\tSTATUS\tJOB\tPID\tSTARTED\tCOMMAND")
	}
	for _, wk := range st.Workers {
		rj := wk.RunningJob
		if rj == nil {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\n", wk.ID, wk.Status)
			continue
		}
		status := string(wk.Status)
		switch {
		case rj.Stale:
			status += " (stale)"
		case rj.KillRequested:
			status += " (kill pending)"
		}
		pid := "-"
		if rj.PID > 0 {
			pid = strconv.Itoa(rj.PID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			wk.ID, status, rj.ID, pid, humanize.Time(rj.StartedAt), rj.Command)
	}

	fmt.Fprintf(tw, "\nQUEUE (%d)\n", len(st.Queue))
	for i, j := range st.Queue {
		fmt.Fprintf(tw, "%d\t%s\n", i+1, j.Command())
	}
	return tw.Flush()
}
