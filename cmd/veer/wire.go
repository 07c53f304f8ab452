// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/veer-dev/veer/internal/catalog"
	"github.com/veer-dev/veer/internal/client"
	_ "github.com/veer-dev/veer/internal/client/anthropic" // register anthropic client
	_ "github.com/veer-dev/veer/internal/client/google"    // register google client
	_ "github.com/veer-dev/veer/internal/client/openai"    // register openai client
	"github.com/veer-dev/veer/internal/config"
	"github.com/veer-dev/veer/internal/cost"
	"github.com/veer-dev/veer/internal/engine"
	"github.com/veer-dev/veer/internal/health"
	"github.com/veer-dev/veer/internal/router"
	veererr "github.com/veer-dev/veer/pkg/errors"
)

// Core holds all wired subsystems and manages their lifecycle.
type Core struct {
	Catalog  *catalog.Catalog
	Monitor  *health.Monitor
	Tracker  *cost.Tracker
	Ledger   *cost.Ledger
	Selector *router.Selector
	Engine   *engine.Engine
}

// WireCore creates all subsystems and wires them together from config.
func WireCore(cfg *config.Config) (*Core, error) {
	cat, err := catalog.New(cfg.CatalogModels())
	if err != nil {
		return nil, veererr.Wrap(err, veererr.CodeCLISetupFailure, "building model catalog")
	}

	monitor := health.NewMonitor(cfg.CircuitPolicy())

	var ledger *cost.Ledger
	if cfg.Costs.LedgerPath != "" {
		path := expandHome(cfg.Costs.LedgerPath)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, veererr.Errorf(veererr.CodeCLISetupFailure, "creating ledger directory: %w", err)
		}
		ledger, err = cost.OpenLedger(path)
		if err != nil {
			return nil, veererr.Wrap(err, veererr.CodeCLISetupFailure, "opening cost ledger")
		}
	}
	tracker := cost.NewTracker(ledger)

	selector, err := router.NewSelector(cat, monitor, cfg.RouterRules())
	if err != nil {
		if ledger != nil {
			_ = ledger.Close()
		}
		return nil, veererr.Wrap(err, veererr.CodeCLISetupFailure, "building model selector")
	}

	factory := client.NewFactory(cfg.ClientCredentials())

	return &Core{
		Catalog:  cat,
		Monitor:  monitor,
		Tracker:  tracker,
		Ledger:   ledger,
		Selector: selector,
		Engine:   engine.New(cat, factory, monitor, tracker),
	}, nil
}

// Close releases all resources held by the core.
func (c *Core) Close() error {
	if c.Ledger != nil {
		return c.Ledger.Close()
	}
	return nil
}

// expandHome resolves a leading ~/ against the user's home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
