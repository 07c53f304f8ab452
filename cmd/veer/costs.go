// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/veer-dev/veer/internal/cost"
	veererr "github.com/veer-dev/veer/pkg/errors"
)

func newCostsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Show accumulated spend from the cost ledger",
		Long:  "Summarize persisted per-request cost records by model and by day. Requires costs.ledger_path to be configured.",
		RunE:  runCosts,
	}

	cmd.Flags().Bool("daily", false, "group totals by day instead of by model")

	return cmd
}

func runCosts(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Costs.LedgerPath == "" {
		return veererr.New(veererr.CodeCLIInputInvalid,
			"no cost ledger configured; set costs.ledger_path to persist spend")
	}

	ledger, err := cost.OpenLedger(expandHome(cfg.Costs.LedgerPath))
	if err != nil {
		return err
	}
	defer ledger.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	if daily, _ := cmd.Flags().GetBool("daily"); daily {
		totals, err := ledger.DailyTotals(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "DAY\tREQUESTS\tCOST")
		for _, t := range totals {
			fmt.Fprintf(w, "%s\t%d\t$%.6f\n", t.Date, t.Requests, t.TotalCostUSD)
		}
		return w.Flush()
	}

	totals, err := ledger.ModelTotals(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "MODEL\tPROVIDER\tREQUESTS\tIN TOKENS\tOUT TOKENS\tCOST")
	for _, t := range totals {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t$%.6f\n",
			t.Model, t.Provider, t.Requests, t.InputTokens, t.OutputTokens, t.TotalCostUSD)
	}
	return w.Flush()
}
