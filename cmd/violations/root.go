package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/traffiq/backend/internal/dataset"
	"github.com/traffiq/backend/internal/fingerprint"
	"github.com/traffiq/backend/internal/violations"
	"github.com/traffiq/backend/pkg/config"
	"github.com/traffiq/backend/pkg/logger"
)

type commandContext struct {
	configFlag    string
	dataFlag      string
	sourceFlag    string
	suppliedTotal bool
	jsonOutput    bool
	verbose       bool

	snapshot *violations.Snapshot
}

// load reads the dataset once per invocation.
func (c *commandContext) load(cmd *cobra.Command) (*violations.Snapshot, error) {
	if c.snapshot != nil {
		return c.snapshot, nil
	}

	level := "warn"
	if c.verbose {
		level = "debug"
	}
	if err := logger.Init(level, "console", "stderr"); err != nil {
		return nil, err
	}

	var cfg *config.Config
	var err error
	if c.configFlag != "" {
		cfg, err = config.LoadFile(c.configFlag)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if c.dataFlag != "" {
		cfg.Data.Path = c.dataFlag
	}
	if c.sourceFlag != "" {
		cfg.Data.Source = c.sourceFlag
	}
	if c.suppliedTotal {
		cfg.Data.SuppliedTotal = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	taxonomy := violations.TaxonomyFromConfig(cfg.Categories)

	var opts []fingerprint.Option
	if cfg.Data.SuppliedTotal {
		opts = append(opts, fingerprint.WithSuppliedTotal())
	}
	analyzer, err := violations.NewAnalyzer(taxonomy, opts...)
	if err != nil {
		return nil, err
	}

	source, err := dataset.NewSource(cfg.Data, taxonomy.Keys())
	if err != nil {
		return nil, err
	}

	table, err := source.Load(cmd.Context())
	if err != nil {
		return nil, err
	}
	if len(table.Records) == 0 {
		return nil, fmt.Errorf("%s contains no usable periods", source.Name())
	}

	snap, err := analyzer.LoadTable(table)
	if err != nil {
		return nil, err
	}
	c.snapshot = snap
	return snap, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "violations",
		Short:         "Inspect traffic violation patterns and similar months",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")
	flags.StringVarP(&ctx.dataFlag, "data", "d", "", "Dataset path (overrides data.path)")
	flags.StringVar(&ctx.sourceFlag, "source", "", "Dataset format: json, csv or sqlite")
	flags.BoolVar(&ctx.suppliedTotal, "supplied-total", false, "Divide by the published total column")
	flags.BoolVar(&ctx.jsonOutput, "json", false, "Print JSON instead of tables")
	flags.BoolVarP(&ctx.verbose, "verbose", "v", false, "Log data quality issues")

	rootCmd.AddCommand(newPeriodsCommand(ctx))
	rootCmd.AddCommand(newPatternCommand(ctx))
	rootCmd.AddCommand(newSimilarCommand(ctx))
	rootCmd.AddCommand(newMatrixCommand(ctx))
	rootCmd.AddCommand(newTrendCommand(ctx))

	return rootCmd
}
