// Package cli implements rewardsctl, the operator tool for the rewards ledger.
package cli

import (
	"errors"
	"fmt"

	"github.com/mcloones/rewards/internal/config"
	"github.com/mcloones/rewards/internal/database"
	"github.com/mcloones/rewards/internal/logging"
	"github.com/mcloones/rewards/internal/store"
	"github.com/mcloones/rewards/internal/store/postgres"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Format     string // "json" | "text"

	// openLedger is swapped in tests
	openLedger func() (store.Ledger, func() error, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ErrDrift is returned by reconcile when any balance disagrees with its log
var ErrDrift = errors.New("ledger drift detected")

// NewRootCommand creates the root command for rewardsctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{openLedger: openPostgresLedger})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rewardsctl",
		Short:         "Operator tool for the McLoone's Bucks ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if err := config.Init(opts.ConfigFile); err != nil {
				return err
			}
			logging.Setup("warn", "text")
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (defaults to environment only)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewLeaderboardCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// ExitCode maps command errors to process exit codes: 1 for drift, 2 otherwise.
func ExitCode(err error) int {
	if errors.Is(err, ErrDrift) {
		return 1
	}
	return 2
}

func openPostgresLedger() (store.Ledger, func() error, error) {
	db, err := database.InitDB()
	if err != nil {
		return nil, nil, err
	}
	return postgres.New(db), database.CloseDB, nil
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
