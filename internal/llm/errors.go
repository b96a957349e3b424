package llm

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds reported by Kind() and surfaced by the HTTP layer.
const (
	KindConfiguration  = "configuration"
	KindProcessStartup = "process_startup"
	KindTimeout        = "timeout"
	KindNetwork        = "network"
	KindRepair         = "repair"
	KindEmptyResponse  = "empty_response"
)

// Configuration error kinds.
const (
	ConfigDisabled       = "disabled"
	ConfigBinaryNotFound = "binary_not_found"
	ConfigModelNotFound  = "model_not_found"
	ConfigNeitherFound   = "neither_found"
	ConfigInvalid        = "invalid"
)

// ConfigurationError signals that a backend cannot run with the current
// configuration. It is never retried automatically.
type ConfigurationError struct {
	Reason string
	Msg    string
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Msg }

// Kind returns KindConfiguration.
func (e *ConfigurationError) Kind() string { return KindConfiguration }

// ErrConfiguration constructs a ConfigurationError of the given kind.
func ErrConfiguration(kind, msg string) error { return &ConfigurationError{Reason: kind, Msg: msg} }

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// ConfigurationKind returns the configuration error kind, or "" if err is not one.
func ConfigurationKind(err error) string {
	var e *ConfigurationError
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// ProcessStartupError covers a missing binary, a failed spawn, a fatal
// output line before readiness and a readiness timeout.
type ProcessStartupError struct {
	Reason     string // spawn | exit | fatal | timeout | canceled
	Diagnostic string
	ExitCode   *int
	Err        error
}

func (e *ProcessStartupError) Error() string {
	msg := "process startup failed (" + e.Reason + ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.ExitCode != nil {
		msg += fmt.Sprintf("; exit code %d", *e.ExitCode)
	}
	if e.Diagnostic != "" {
		msg += "; output tail: " + e.Diagnostic
	}
	return msg
}

func (e *ProcessStartupError) Unwrap() error { return e.Err }

// Kind returns KindProcessStartup.
func (e *ProcessStartupError) Kind() string { return KindProcessStartup }

// IsProcessStartup reports whether err is a ProcessStartupError.
func IsProcessStartup(err error) bool {
	var e *ProcessStartupError
	return errors.As(err, &e)
}

// TimeoutError signals that a request exceeded its deadline and was aborted.
type TimeoutError struct {
	Op    string
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("%s: timed out after %s", e.Op, e.After)
	}
	return e.Op + ": timed out"
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Kind returns KindTimeout.
func (e *TimeoutError) Kind() string { return KindTimeout }

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var e *TimeoutError
	return errors.As(err, &e)
}

// NetworkError covers connection failures and non-2xx responses.
type NetworkError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + ": network error"
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Kind returns KindNetwork.
func (e *NetworkError) Kind() string { return KindNetwork }

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var e *NetworkError
	return errors.As(err, &e)
}

// RepairError signals model output that could not be coerced into the
// expected shape by a generation operation.
type RepairError struct {
	Op     string
	Reason string
	Err    error
}

func (e *RepairError) Error() string {
	msg := e.Op + ": unusable model output (" + e.Reason + ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RepairError) Unwrap() error { return e.Err }

// Kind returns KindRepair.
func (e *RepairError) Kind() string { return KindRepair }

// IsRepair reports whether err is a RepairError.
func IsRepair(err error) bool {
	var e *RepairError
	return errors.As(err, &e)
}

// EmptyResponseError means the model produced nothing at all, as opposed to
// producing something unparsable.
type EmptyResponseError struct {
	Op       string
	Provider Provider
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("%s: model produced an empty response (%s)", e.Op, e.Provider)
}

// Kind returns KindEmptyResponse.
func (e *EmptyResponseError) Kind() string { return KindEmptyResponse }

// IsEmptyResponse reports whether err is an EmptyResponseError.
func IsEmptyResponse(err error) bool {
	var e *EmptyResponseError
	return errors.As(err, &e)
}

// ErrorKind returns the taxonomy kind of err, or "" for unclassified errors.
func ErrorKind(err error) string {
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}
