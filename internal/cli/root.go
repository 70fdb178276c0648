// Package cli implements the creditsctl commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/xraph/credits"
	"github.com/xraph/credits/internal/config"
	"github.com/xraph/credits/kafkahook"
)

// app carries the state shared by every command of one invocation.
type app struct {
	cfgFile string
	output  string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd returns the creditsctl root command.
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "creditsctl",
		Short:         "Operate a credits ledger store",
		Long:          "creditsctl inspects and maintains a credits ledger: schema migration, balances, history, reconciliation and the expiry sweep.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./credits.yaml)")
	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", "text", "output format: text|json")

	rootCmd.AddCommand(newMigrateCmd(a))
	rootCmd.AddCommand(newBalanceCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))
	rootCmd.AddCommand(newReconcileCmd(a))
	rootCmd.AddCommand(newSweepCmd(a))
	rootCmd.AddCommand(newPackagesCmd(a))

	return rootCmd
}

// Execute runs the root command with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) init(logOut io.Writer) error {
	if a.output != "text" && a.output != "json" {
		return fmt.Errorf("unknown output format %q", a.output)
	}
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	logger, err := NewLogger(logOut, cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// ledger opens the configured store and starts a ledger on it without the
// background sweep. The caller stops it.
func (a *app) ledger(ctx context.Context, opts ...credits.Option) (*credits.Ledger, error) {
	s, err := OpenStore(ctx, a.cfg.Store)
	if err != nil {
		return nil, err
	}

	base := []credits.Option{
		credits.WithLogger(a.logger),
		credits.WithSweepInterval(0),
		credits.WithSweepBatchSize(a.cfg.Sweep.BatchSize),
	}
	if len(a.cfg.Kafka.Brokers) > 0 {
		producer, err := kafkahook.NewProducer(a.cfg.Kafka.Brokers)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		base = append(base, credits.WithPlugin(
			kafkahook.New(producer, a.cfg.Kafka.Topic, kafkahook.WithLogger(a.logger)),
		))
	}

	l := credits.New(s, append(base, opts...)...)
	if err := l.Start(ctx); err != nil {
		_ = l.Stop()
		return nil, err
	}
	return l, nil
}

// render writes v as indented JSON, or calls text when output is text.
func (a *app) render(w io.Writer, v any, text func(io.Writer) error) error {
	if a.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}
