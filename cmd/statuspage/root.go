package main

import (
	"github.com/ayerhssb/status-page/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "statuspage",
		Short: "Incident-driven service status page",
		Long: `statuspage derives service status from active incidents and publishes
every change to websocket subscribers and webhooks.

Configuration is read from an optional YAML file and STATUSPAGE_ environment
variables (STATUSPAGE_DATABASE__URL sets database.url).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to YAML config file")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newReconcileCmd(opts))
	cmd.AddCommand(newTokenCmd(opts))
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configFile)
}
