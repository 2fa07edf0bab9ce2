package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowstate-go/flowstate/flow/store"
)

// rootOptions carries the persistent flags down to subcommands.
type rootOptions struct {
	configPath string
	storeKind  string
	dbPath     string
}

// resolve loads the config file and applies flag overrides.
func (o *rootOptions) resolve() (Config, error) {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return Config{}, err
	}
	if o.storeKind != "" {
		cfg.Store = o.storeKind
	}
	if o.dbPath != "" {
		cfg.Path = o.dbPath
	}
	return cfg, nil
}

// openStore resolves the configuration and connects to the store.
func (o *rootOptions) openStore() (store.Store, Config, error) {
	cfg, err := o.resolve()
	if err != nil {
		return nil, Config{}, err
	}
	st, err := cfg.open()
	if err != nil {
		return nil, Config{}, fmt.Errorf("failed to open store: %w", err)
	}
	return st, cfg, nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "flowstate",
		Short: "Inspect and operate on a flowstate database",
		Long: `flowstate is the operations CLI for the flowstate durable-execution
engine. It opens the engine's database directly: list workflows and tasks,
wake suspended tasks, and recover tasks orphaned by crashed workers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default "+DefaultConfigPath+" if present)")
	cmd.PersistentFlags().StringVar(&opts.storeKind, "store", "", "Store kind: sqlite, document, or mysql")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Database path (or DSN for mysql)")

	cmd.AddCommand(newWorkflowsCommand(opts))
	cmd.AddCommand(newTasksCommand(opts))

	return cmd
}
