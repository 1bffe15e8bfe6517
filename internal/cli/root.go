package cli

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/me/jobd/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagSocket    string
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultSocket returns the default control socket, checking JOBD_SOCKET first.
func defaultSocket() string {
	if s := os.Getenv("JOBD_SOCKET"); s != "" {
		return s
	}
	return filepath.Join(".data", "jobd.sock")
}

// NewRootCmd creates the root cobra command for the jobctl CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jobctl",
		Short: "jobctl controls a running jobd daemon",
		Long: "jobctl manages the worker pool and job queue of a jobd daemon over its " +
			"control socket. Set --server (or JOBD_SERVER) to talk to a TCP listener instead.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat, os.Stderr)
			if flagServer != "" {
				client = NewClient(flagServer, logger)
			} else {
				client = NewUnixClient(flagSocket, logger)
			}
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagSocket, "socket", defaultSocket(), "jobd control socket (or JOBD_SOCKET env)")
	root.PersistentFlags().StringVar(&flagServer, "server", os.Getenv("JOBD_SERVER"), "jobd HTTP URL, overrides --socket (or JOBD_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newStatusCmd(),
		newAddWorkerCmd(),
		newRmWorkerCmd(),
		newReleaseCmd(),
		newAddJobCmd(),
		newRmJobCmd(),
		newLogsCmd(),
		newLoadStatusCmd(),
		newStopCmd(),
	)

	return root
}
