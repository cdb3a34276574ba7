package cli

import (
	"cmp"
	"os"

	"github.com/spf13/cobra"

	"github.com/aihub/agentdesk/internal/config"
	"github.com/aihub/agentdesk/internal/logging"
	"github.com/aihub/agentdesk/internal/version"
)

// Set for every command by the root pre-run.
var (
	cfgFile  string
	logLevel string

	paths config.Paths
	log   *logging.Logger
)

// setup resolves the data directory and the CLI logger. Commands that run
// the server replace log with one built from the config.
func setup(*cobra.Command, []string) error {
	var err error
	if paths, err = config.ResolvePaths(); err != nil {
		return err
	}
	if cfgFile != "" {
		paths.Config = cfgFile
	}
	log = logging.New(nil, cmp.Or(logLevel, os.Getenv("AGENTDESK_LOG_LEVEL"), "warn"))
	return nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentdesk",
		Short: "FastGPT chat gateway and performance dashboard",
		Long: "agentdesk serves chat sessions against FastGPT agents, keeps their history in SQLite\n" +
			"and reports latency, optimization suggestions and alerts to the admin dashboard.",
		Version:           version.Get().Version,
		PersistentPreRunE: setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $AGENTDESK_HOME/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "trace, debug, info, warn, error or silent (default warn)")

	cmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newSessionsCmd(),
		newAgentsCmd(),
		newOptimizeCmd(),
		newBenchCmd(),
		newStatusCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the agentdesk command tree.
func Execute() error {
	return newRootCmd().Execute()
}
