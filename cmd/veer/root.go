// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/veer-dev/veer/internal/config"
)

// NewRootCmd creates the root veer command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "veer",
		Short:         "Veer - resilient LLM routing",
		Long:          "Veer routes LLM requests across providers with per-provider circuit breaking, fallback cascades, and cost tracking.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
					&slog.HandlerOptions{Level: slog.LevelDebug})))
			} else {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
					&slog.HandlerOptions{Level: slog.LevelWarn})))
			}
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newAskCmd(),
		newModelsCmd(),
		newCostsCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig resolves the config path (flag, then the default location,
// bootstrapping a starter file when none exists) and loads it.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err == nil {
			if _, statErr := os.Stat(defaultPath); statErr == nil {
				path = defaultPath
			} else if written := config.BootstrapConfig(); written != "" {
				path = written
			}
		}
	}

	if path != "" {
		config.WarnInsecurePermissions(path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}
