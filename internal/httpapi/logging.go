package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger used by the HTTP layer.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l.With().Str("component", "http").Logger() }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

var defaultLogLevel = LevelInfo

// SetRequestLogLevel sets the default per-request log level.
func SetRequestLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

func withRequestID(e *zerolog.Event, r *http.Request) *zerolog.Event {
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		return e.Str("request_id", rid)
	}
	return e
}

// logEnd logs the outcome of a request. Failures log at error level when the
// request level is at least LevelError; successes need LevelInfo.
func logEnd(r *http.Request, op string, status int, start time.Time, err error) {
	lvl := requestLogLevel(r)
	var e *zerolog.Event
	switch {
	case err != nil && lvl >= LevelError:
		e = zlog.Error().Err(err)
	case err == nil && lvl >= LevelInfo:
		e = zlog.Info()
	default:
		return
	}
	e = withRequestID(e, r).Str("op", op).Int("status", status)
	if !start.IsZero() {
		e = e.Dur("dur", time.Since(start))
	}
	e.Msg("request end")
}
