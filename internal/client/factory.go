// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package client

import (
	"sync"

	veererr "github.com/veer-dev/veer/pkg/errors"
)

// Credentials holds per-provider connection settings.
type Credentials struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Builder constructs a Client for one provider type. Provider packages
// call Register from init(); wiring code blank-imports them.
type Builder func(creds Credentials) (Client, error)

var (
	buildersMu sync.RWMutex
	builders   = map[string]Builder{}
)

// Register registers a builder for a named provider type.
// Goroutine-safe; later registrations replace earlier ones.
func Register(provider string, b Builder) {
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[provider] = b
}

// Factory constructs and caches one Client per provider from static
// credentials. It replaces branching on a provider-type string at call
// sites: the engine asks for a client by provider name only.
type Factory struct {
	mu      sync.Mutex
	creds   map[string]Credentials
	clients map[string]Client
}

// NewFactory creates a factory over the given per-provider credentials.
func NewFactory(creds map[string]Credentials) *Factory {
	if creds == nil {
		creds = map[string]Credentials{}
	}
	return &Factory{
		creds:   creds,
		clients: make(map[string]Client),
	}
}

// ClientFor returns the cached client for provider, building it on
// first use. Unknown provider types and missing credentials are
// configuration errors, never retried.
func (f *Factory) ClientFor(provider string) (Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[provider]; ok {
		return c, nil
	}

	buildersMu.RLock()
	builder, ok := builders[provider]
	buildersMu.RUnlock()
	if !ok {
		return nil, veererr.New(veererr.CodeClientConfigUnsupported,
			"unsupported provider type: "+provider, veererr.FieldProvider(provider))
	}

	creds, ok := f.creds[provider]
	if !ok || creds.APIKey == "" {
		return nil, veererr.New(veererr.CodeClientConfigMissingCredential,
			"missing api key for provider: "+provider, veererr.FieldProvider(provider))
	}

	c, err := builder(creds)
	if err != nil {
		return nil, err
	}
	f.clients[provider] = c
	return c, nil
}
