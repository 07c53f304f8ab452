// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeClientConfigMissingCredential Code = "client.config.missing_credential"
	CodeClientConfigUnsupported       Code = "client.config.unsupported_provider"
	CodeClientRequestInvalid          Code = "client.request.invalid"

	CodeProviderUpstreamFailure   Code = "provider.upstream.failure"
	CodeProviderUpstreamTimeout   Code = "provider.upstream.timeout"
	CodeProviderRequestRejected   Code = "provider.request.rejected"
	CodeProviderResponseInvalid   Code = "provider.response.invalid"
	CodeProviderStreamInterrupted Code = "provider.stream.interrupted"

	CodeRouterModelNotFound  Code = "router.model.not_found"
	CodeRouterDefaultMissing Code = "router.default.missing"

	CodeCatalogEntryInvalid Code = "catalog.entry.invalid_value"
	CodeCatalogRefUnknown   Code = "catalog.ref.not_found"

	CodeCostLedgerOpenFailure   Code = "cost.ledger.open.failure"
	CodeCostLedgerAppendFailure Code = "cost.ledger.append.failure"
	CodeCostLedgerQueryFailure  Code = "cost.ledger.query.failure"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"

	CodeInternalFailure Code = "internal.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func FieldModel(value string) Attr {
	return Field("model", value)
}

func FieldRequestID(value string) Attr {
	return Field("request_id", value)
}

// FieldStatus attaches the HTTP status reported by an upstream provider.
// Model clients set it; the execution engine reads it back through StatusOf
// to classify failures without depending on any vendor SDK error type.
func FieldStatus(status int) Attr {
	return Field("status", status)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

// StatusOf returns the upstream HTTP status attached via FieldStatus,
// or 0 when the error carries none.
func StatusOf(err error) int {
	fields := FieldsOf(err)
	if fields == nil {
		return 0
	}

	switch v := fields["status"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsMissingCredential(err error) bool {
	return reason(CodeOf(err)) == "missing_credential"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		if s := StatusOf(err); s != 0 {
			return s
		}
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
