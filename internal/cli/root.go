// Package cli implements graphctl, the operator command line for the social
// graph: schema migrations and on-demand counter reconciliation.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alem-hub/socialgraph/config"
	"github.com/alem-hub/socialgraph/pkg/logger"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

type rootOptions struct {
	verbose bool
	output  string
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "graphctl",
		Short: "Operate the social graph service",
		Long: `graphctl runs maintenance tasks against the social graph store.

Configuration is read from the environment and an optional .env file, the
same way the api and worker binaries read it.

Examples:
  graphctl migrate up
  graphctl migrate status
  graphctl reconcile --dry-run --output json`,
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format (table, json)")

	root.AddCommand(
		newMigrateCommand(opts),
		newReconcileCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs graphctl with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// setup loads configuration and a logger that writes to the command's stderr.
func (o *rootOptions) setup(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logOpts := logger.DefaultOptions()
	logOpts.Output = cmd.ErrOrStderr()
	logOpts.Format = "console"
	logOpts.AddCaller = false
	logOpts.Level = logger.LevelWarn
	if o.verbose {
		logOpts.Level = logger.LevelDebug
	}
	return cfg, logger.New(logOpts), nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the graphctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "graphctl "+Version)
		},
	}
}
