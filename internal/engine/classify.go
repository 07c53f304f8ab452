// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package engine

import (
	"context"
	"errors"
	"net"
	"strings"

	veererr "github.com/veer-dev/veer/pkg/errors"
)

// Class is the retry classification of a failed attempt.
type Class string

const (
	// ClassTransient failures advance the cascade to the next model.
	ClassTransient Class = "transient"
	// ClassPermanent failures propagate immediately, no alternates tried.
	ClassPermanent Class = "permanent"
	// ClassConfiguration failures are operator problems, never retried.
	ClassConfiguration Class = "configuration"
)

// retryableStatuses are the upstream HTTP statuses worth trying an
// alternate model for.
var retryableStatuses = map[int]bool{
	408: true,
	425: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// transientKeywords catch transport faults surfaced only as message
// text, typically from gateways between us and the provider.
var transientKeywords = []string{"timeout", "timed out", "network", "connection"}

// Classify maps an attempt error onto the retry taxonomy. Unknown
// errors with no status hint classify as transient: an opaque failure
// from a provider that was reachable is most often a fault worth
// trying an alternate for.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}

	switch code := veererr.CodeOf(err); code {
	case veererr.CodeClientConfigMissingCredential,
		veererr.CodeClientConfigUnsupported,
		veererr.CodeCatalogRefUnknown:
		return ClassConfiguration
	case veererr.CodeProviderUpstreamTimeout:
		return ClassTransient
	case veererr.CodeClientRequestInvalid:
		return ClassPermanent
	}

	if status := veererr.StatusOf(err); status > 0 {
		if retryableStatuses[status] {
			return ClassTransient
		}
		if status >= 400 && status < 500 {
			return ClassPermanent
		}
		return ClassTransient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range transientKeywords {
		if strings.Contains(msg, kw) {
			return ClassTransient
		}
	}

	return ClassTransient
}

// Retryable reports whether a failed attempt should advance the
// fallback cascade.
func Retryable(err error) bool {
	return Classify(err) == ClassTransient
}
