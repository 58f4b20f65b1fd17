package main

import (
	"github.com/spf13/cobra"

	"supplyledger/internal/config"
)

// config key → persistent flag name
var rootFlagKeys = map[string]string{
	config.KeyStorageDriver:      "storage",
	config.KeyStorageSQLitePath:  "sqlite-path",
	config.KeyStoragePostgresDSN: "postgres-dsn",
	config.KeyBlobDriver:         "blob",
	config.KeyBlobFSRoot:         "blob-root",
	config.KeyDeployManifest:     "manifest",
	config.KeyLogLevel:           "log-level",
	config.KeyLogFormat:          "log-format",
	config.KeyMetricsTextfile:    "metrics-textfile",
	config.KeyMetricsDriver:      "metrics",
	config.KeyTraceFile:          "trace",
}

func newRootCmd(onOpen func(*app)) *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "supplyledger",
		Short:         "Deploy and operate the token ledger and supply chain registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v := config.New()
			if err := config.ReadFile(v, cfgFile); err != nil {
				return err
			}
			if err := config.BindFlags(v, cmd.Flags(), rootFlagKeys); err != nil {
				return err
			}
			a, err := newApp(v, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if onOpen != nil {
				onOpen(a)
			}
			cmd.SetContext(withApp(cmd.Context(), a))
			return nil
		},
	}
	root.CompletionOptions.HiddenDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "YAML config file")
	flags.String("storage", "", "storage driver: memory|sqlite|postgres")
	flags.String("sqlite-path", "", "SQLite database file")
	flags.String("postgres-dsn", "", "PostgreSQL connection string")
	flags.String("blob", "", "snapshot archive driver: fs|s3|memory")
	flags.String("blob-root", "", "archive directory for the fs driver")
	flags.String("manifest", "", "deployment manifest path")
	flags.String("log-level", "", "debug|info|warn|error")
	flags.String("log-format", "", "console|json")
	flags.String("metrics", "", "metrics driver: prometheus|expvar")
	flags.String("metrics-textfile", "", "write metrics to this file on exit")
	flags.String("trace", "", "append JSON trace spans to this file")

	root.AddCommand(newDeployCmd(), newTokenCmd(), newChainCmd(), newSnapshotCmd(), newDeploymentsCmd())
	return root
}
