// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package catalog

import (
	"sort"
	"time"

	veererr "github.com/veer-dev/veer/pkg/errors"
)

// Capabilities declares what a model supports.
type Capabilities struct {
	SupportsStreaming bool
	SupportsVision    bool
	SupportsThinking  bool
	MaxContextTokens  int
	MaxOutputTokens   int
}

// Model is one catalog entry. Entries are immutable once the catalog
// is built; pricing is USD per 1,000 tokens.
type Model struct {
	ID            string
	Provider      string
	PricePerKIn   float64
	PricePerKOut  float64
	Timeout       time.Duration
	Capabilities  Capabilities
	Fallback      string // same-provider fallback model ID, optional
	CrossProvider string // closest equivalent on another provider, optional
}

// DefaultTimeout bounds a single attempt when a model entry carries none.
const DefaultTimeout = 60 * time.Second

// Catalog is a read-only model registry loaded once at process start.
type Catalog struct {
	models map[string]Model
}

// New builds and validates a catalog from the given entries.
func New(models []Model) (*Catalog, error) {
	byID := make(map[string]Model, len(models))

	for _, m := range models {
		if m.ID == "" {
			return nil, veererr.New(veererr.CodeCatalogEntryInvalid, "model entry missing id")
		}
		if m.Provider == "" {
			return nil, veererr.Errorf(veererr.CodeCatalogEntryInvalid, "model %q missing provider", m.ID)
		}
		if m.PricePerKIn < 0 || m.PricePerKOut < 0 {
			return nil, veererr.Errorf(veererr.CodeCatalogEntryInvalid, "model %q has negative pricing", m.ID)
		}
		if m.Timeout < 0 {
			return nil, veererr.Errorf(veererr.CodeCatalogEntryInvalid, "model %q has negative timeout", m.ID)
		}
		if m.Timeout == 0 {
			m.Timeout = DefaultTimeout
		}
		if _, dup := byID[m.ID]; dup {
			return nil, veererr.Errorf(veererr.CodeCatalogEntryInvalid, "duplicate model id %q", m.ID)
		}
		byID[m.ID] = m
	}

	// Fallback links must resolve inside the catalog. Cycles are tolerated
	// here; chain construction carries its own visited-set guard.
	for _, m := range byID {
		if m.Fallback != "" {
			if _, ok := byID[m.Fallback]; !ok {
				return nil, veererr.Errorf(veererr.CodeCatalogRefUnknown,
					"model %q fallback %q not in catalog", m.ID, m.Fallback)
			}
		}
		if m.CrossProvider != "" {
			eq, ok := byID[m.CrossProvider]
			if !ok {
				return nil, veererr.Errorf(veererr.CodeCatalogRefUnknown,
					"model %q cross-provider equivalent %q not in catalog", m.ID, m.CrossProvider)
			}
			if eq.Provider == m.Provider {
				return nil, veererr.Errorf(veererr.CodeCatalogEntryInvalid,
					"model %q cross-provider equivalent %q is on the same provider", m.ID, m.CrossProvider)
			}
		}
	}

	return &Catalog{models: byID}, nil
}

// Model returns the entry for id.
func (c *Catalog) Model(id string) (Model, bool) {
	m, ok := c.models[id]
	return m, ok
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.models[id]
	return ok
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.models)
}

// IDs returns all model IDs in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.models))
	for id := range c.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
