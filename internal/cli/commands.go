package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/mcloones/rewards/internal/services"
	"github.com/mcloones/rewards/internal/store"
	"github.com/spf13/cobra"
)

// NewReconcileCommand scans the transaction log and compares it with cached balances.
func NewReconcileCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Verify every balance equals the sum of its transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, closeFn, err := opts.openLedger()
			if err != nil {
				return err
			}
			defer closeFn()

			drifts, err := services.NewReconciler(ledger).Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				if err := writeJSON(out, map[string]any{"consistent": len(drifts) == 0, "drifts": drifts}); err != nil {
					return err
				}
			} else if len(drifts) == 0 {
				fmt.Fprintln(out, "ledger consistent")
			} else {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "EMPLOYEE\tCACHED\tLEDGER\tDIFF")
				for _, d := range drifts {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", d.EmployeeID, d.CachedBalance, d.LedgerSum, d.CachedBalance-d.LedgerSum)
				}
				tw.Flush()
			}

			if len(drifts) > 0 {
				return fmt.Errorf("%w: %d employee(s)", ErrDrift, len(drifts))
			}
			return nil
		},
	}
}

// NewLeaderboardCommand prints the current top standings.
func NewLeaderboardCommand(opts *RootOptions) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top employees by balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, closeFn, err := opts.openLedger()
			if err != nil {
				return err
			}
			defer closeFn()

			standings, err := services.NewQueryService(ledger).GetLeaderboard(cmd.Context(), n)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, standings)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tNAME\tBALANCE")
			for _, s := range standings {
				fmt.Fprintf(tw, "%d\t%s\t%d\n", s.Rank, s.Employee.FullName, s.Balance)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&n, "top", "n", 10, "number of standings")
	return cmd
}

// NewHistoryCommand prints an employee's transactions, or the global feed with --all.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "history [employee-id]",
		Short: "List transactions newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, closeFn, err := opts.openLedger()
			if err != nil {
				return err
			}
			defer closeFn()

			queries := services.NewQueryService(ledger)
			page := store.Page{Limit: limit, Cursor: cursor}

			var result store.TransactionPage
			if len(args) == 1 {
				result, err = queries.GetHistory(cmd.Context(), args[0], page)
			} else {
				result, err = queries.GetGlobalFeed(cmd.Context(), page)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, result)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tEMPLOYEE\tAMOUNT\tBY\tREASON")
			for _, t := range result.Transactions {
				fmt.Fprintf(tw, "%s\t%s\t%+d\t%s\t%s\n", t.CreatedAt.Format(time.RFC3339), t.EmployeeID, t.Amount, t.AwardedByName, t.Reason)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if result.NextCursor != "" {
				fmt.Fprintf(out, "more: --cursor %s\n", result.NextCursor)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor from a previous page")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
