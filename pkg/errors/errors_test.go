// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	veererr "github.com/veer-dev/veer/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := veererr.New(
		veererr.CodeConfigValidateInvalidValue,
		"invalid model configuration",
		veererr.FieldProvider("openai"),
		veererr.FieldModel("gpt-4.1-mini"),
	)

	require.Error(t, err)
	assert.Equal(t, veererr.CodeConfigValidateInvalidValue, veererr.CodeOf(err))
	assert.True(t, veererr.HasCode(err, veererr.CodeConfigValidateInvalidValue))

	fields := veererr.FieldsOf(err)
	assert.Equal(t, "openai", fields["provider"])
	assert.Equal(t, "gpt-4.1-mini", fields["model"])
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := veererr.Errorf(veererr.CodeRouterModelNotFound, "model %q not in catalog", "claude-x")
	require.Error(t, err)
	assert.Equal(t, veererr.CodeRouterModelNotFound, veererr.CodeOf(err))
	assert.Contains(t, err.Error(), `model "claude-x" not in catalog`)
}

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("connection reset")
	err := veererr.Wrap(
		root,
		veererr.CodeProviderUpstreamFailure,
		"calling anthropic",
		veererr.FieldProvider("anthropic"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, veererr.CodeProviderUpstreamFailure, veererr.CodeOf(err))
	assert.True(t, veererr.IsUpstreamFailure(err))
	assert.Equal(t, "anthropic", veererr.FieldsOf(err)["provider"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, veererr.Wrap(nil, veererr.CodeInternalFailure, "ignored"))
	assert.NoError(t, veererr.Wrapf(nil, veererr.CodeInternalFailure, "ignored %s", "arg"))
}

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := veererr.New(veererr.CodeProviderRequestRejected, "bad request")
	withCtx := veererr.With(base, veererr.FieldRequestID("req-1"))

	require.Error(t, withCtx)
	assert.Equal(t, veererr.CodeProviderRequestRejected, veererr.CodeOf(withCtx))
	assert.Equal(t, "req-1", veererr.FieldsOf(withCtx)["request_id"])
}

func TestStatusOfRoundTrip(t *testing.T) {
	err := veererr.New(
		veererr.CodeProviderUpstreamFailure,
		"service unavailable",
		veererr.FieldStatus(http.StatusServiceUnavailable),
	)

	assert.Equal(t, http.StatusServiceUnavailable, veererr.StatusOf(err))
}

func TestStatusOfMissing(t *testing.T) {
	assert.Equal(t, 0, veererr.StatusOf(nil))
	assert.Equal(t, 0, veererr.StatusOf(stderrors.New("plain")))
	assert.Equal(t, 0, veererr.StatusOf(veererr.New(veererr.CodeInternalFailure, "no status")))
}

func TestPredicates(t *testing.T) {
	assert.True(t, veererr.IsTimeout(veererr.New(veererr.CodeProviderUpstreamTimeout, "deadline")))
	assert.True(t, veererr.IsNotFound(veererr.New(veererr.CodeCatalogRefUnknown, "missing")))
	assert.True(t, veererr.IsMissingCredential(veererr.New(veererr.CodeClientConfigMissingCredential, "no key")))
	assert.False(t, veererr.IsTimeout(veererr.New(veererr.CodeProviderUpstreamFailure, "503")))
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"timeout", veererr.New(veererr.CodeProviderUpstreamTimeout, "slow"), http.StatusGatewayTimeout},
		{"upstream", veererr.New(veererr.CodeProviderUpstreamFailure, "down"), http.StatusBadGateway},
		{"invalid config", veererr.New(veererr.CodeConfigValidateInvalidValue, "bad"), http.StatusBadRequest},
		{"not found", veererr.New(veererr.CodeRouterModelNotFound, "gone"), http.StatusNotFound},
		{"status hint passthrough", veererr.New(veererr.CodeProviderRequestRejected, "nope", veererr.FieldStatus(422)), 422},
		{"unknown", veererr.New(veererr.CodeInternalFailure, "boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, veererr.HTTPStatus(tt.err))
		})
	}
}

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := veererr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
}
