// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List configured models",
		Long:  "Show every model in the registry with its provider, pricing, timeout, and fallback links.",
		RunE:  runModels,
	}
}

func runModels(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	core, err := WireCore(cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tPROVIDER\t$/1K IN\t$/1K OUT\tTIMEOUT\tFALLBACK\tCROSS")

	for _, id := range core.Catalog.IDs() {
		m, _ := core.Catalog.Model(id)
		fallback := m.Fallback
		if fallback == "" {
			fallback = "-"
		}
		cross := m.CrossProvider
		if cross == "" {
			cross = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%s\t%s\t%s\n",
			m.ID, m.Provider, m.PricePerKIn, m.PricePerKOut, m.Timeout, fallback, cross)
	}

	return w.Flush()
}
