// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/veer-dev/veer/internal/config"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check binary health, config, provider API keys, the model registry, the cost ledger, and disk space.",
		RunE:  runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()

	cfg, cfgPath, err := loadConfig(cmd)
	if err != nil {
		// A broken config is itself a finding, not a command failure.
		fmt.Fprintf(w, "%-20s %s\n", "Config:", fmt.Sprintf("error: %s", err))
		return nil
	}

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(cfgPath) }},
		{"Providers", func() string { return checkProviders(cfg) }},
		{"Models", func() string { return checkModels(cfg) }},
		{"Cost Ledger", func() string { return checkLedger(cfg) }},
		{"Disk Space", checkDiskSpace},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("veer %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(path string) string {
	if path != "" {
		return fmt.Sprintf("loaded from %s", path)
	}
	return "using defaults (no config file found)"
}

func checkProviders(cfg *config.Config) string {
	if len(cfg.Providers) == 0 {
		return "none configured"
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := ""
	missing := 0
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		if cfg.Providers[name].APIKey == "" {
			out += name + " (no api key)"
			missing++
		} else {
			out += name
		}
	}
	if missing == len(names) {
		return out + " -- no provider has credentials"
	}
	return out
}

func checkModels(cfg *config.Config) string {
	if len(cfg.Models) == 0 {
		return "none configured"
	}
	return fmt.Sprintf("%d model(s), default %s", len(cfg.Models), cfg.Routing.Default)
}

func checkLedger(cfg *config.Config) string {
	if cfg.Costs.LedgerPath == "" {
		return "disabled (in-memory cost tracking only)"
	}
	path := expandHome(cfg.Costs.LedgerPath)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("not yet created at %s", path)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return path
}

func checkDiskSpace() string {
	path, err := os.UserHomeDir()
	if err != nil {
		path = string(filepath.Separator)
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
