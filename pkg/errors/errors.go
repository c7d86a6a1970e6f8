// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

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
	CodeStoreNotFound           Code = "store.record.get.not_found"
	CodeStoreReadFailure        Code = "store.record.read.failure"
	CodeStoreWriteFailure       Code = "store.record.write.failure"
	CodeStoreCorrupt            Code = "store.record.read.corrupt"
	CodeStoreLockFailure        Code = "store.lock.acquire.failure"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreInvalidInput       Code = "store.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeKillSwitchWriteFailure Code = "killswitch.write.failure"

	CodeGateRequestInvalid Code = "gate.request.invalid"
	CodeGateKillSwitch     Code = "gate.blocked.kill_switch"
	CodeGateCircuitOpen    Code = "gate.blocked.circuit_open"
	CodeGateDuplicate      Code = "gate.blocked.duplicate"
	CodeGateCooldown       Code = "gate.blocked.cooldown"

	CodeExecutorWorkFailure Code = "executor.work.failure"
	CodeExecutorWorkPanic   Code = "executor.work.panic"

	CodeRecoveryTierRejected      Code = "recovery.tier.forbidden"
	CodeRecoveryCooldown          Code = "recovery.cooldown.active"
	CodeRecoveryAttemptsExhausted Code = "recovery.attempts.exhausted"
	CodeRecoveryHandlerNotFound   Code = "recovery.handler.not_found"
	CodeRecoveryHandlerInvalid    Code = "recovery.handler.invalid_input"
	CodeRecoveryHandlerFailure    Code = "recovery.handler.failure"
	CodeRecoveryDisabled          Code = "recovery.kill_switch.denied"

	CodeWatchdogRulesInvalid Code = "watchdog.rules.invalid"
	CodeWatchdogRulesRead    Code = "watchdog.rules.read.failure"
	CodeWatchdogProbeFailure Code = "watchdog.probe.failure"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerNotFound        Code = "server.entity.not_found"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"
	CodeCLIBlocked      Code = "cli.action.denied"
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

func FieldIntegration(value string) Attr {
	return Field("integration", value)
}

func FieldActionID(value string) Attr {
	return Field("action_id", value)
}

func FieldPath(value string) Attr {
	return Field("path", value)
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
		code = CodeServerInternalFailure
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

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsCorrupt(err error) bool {
	return reason(CodeOf(err)) == "corrupt"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsDenied(err error) bool {
	r := reason(CodeOf(err))
	return r == "forbidden" || r == "denied"
}

// IsBlocked reports whether err is a gate refusal rather than a failure.
func IsBlocked(err error) bool {
	return strings.HasPrefix(string(CodeOf(err)), "gate.blocked.")
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsDenied(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
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
