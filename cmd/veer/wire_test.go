// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package main

import (
	"path/filepath"
	"testing"

	"github.com/veer-dev/veer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCoreConfig() *config.Config {
	return &config.Config{
		Providers: map[string]config.ProviderConfig{
			"openai": {APIKey: "test-key"},
		},
		Models: map[string]config.ModelConfig{
			"gpt-4.1":      {Provider: "openai", Fallback: "gpt-4.1-mini"},
			"gpt-4.1-mini": {Provider: "openai"},
		},
		Routing: config.RoutingConfig{
			Default:            "gpt-4.1",
			EscalationMessages: 10,
			EscalationChars:    4000,
		},
		Circuit: config.CircuitConfig{
			FailureThreshold:  5,
			RecoveryTimeoutMs: 30000,
			HalfOpenSuccesses: 2,
			FailureWindowMs:   60000,
		},
	}
}

func TestWireCore(t *testing.T) {
	core, err := WireCore(testCoreConfig())
	require.NoError(t, err)
	defer core.Close()

	assert.Equal(t, 2, core.Catalog.Len())
	assert.NotNil(t, core.Monitor)
	assert.NotNil(t, core.Tracker)
	assert.NotNil(t, core.Selector)
	assert.NotNil(t, core.Engine)
	assert.Nil(t, core.Ledger, "no ledger without a configured path")
}

func TestWireCore_WithLedger(t *testing.T) {
	cfg := testCoreConfig()
	cfg.Costs.LedgerPath = filepath.Join(t.TempDir(), "costs.db")

	core, err := WireCore(cfg)
	require.NoError(t, err)
	require.NotNil(t, core.Ledger)
	assert.NoError(t, core.Close())
}

func TestWireCore_InvalidRouting(t *testing.T) {
	cfg := testCoreConfig()
	cfg.Routing.Default = "ghost"

	_, err := WireCore(cfg)
	assert.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	assert.Equal(t, "/tmp/x.db", expandHome("/tmp/x.db"))
	expanded := expandHome("~/x.db")
	assert.NotContains(t, expanded, "~")
}
