package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"inferd/internal/llm"
	"inferd/pkg/types"
)

const kindBadRequest = "bad_request"

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps the llm error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	switch llm.ErrorKind(err) {
	case llm.KindConfiguration, llm.KindProcessStartup:
		return http.StatusServiceUnavailable
	case llm.KindTimeout:
		return http.StatusGatewayTimeout
	case llm.KindNetwork:
		return http.StatusBadGateway
	case llm.KindRepair, llm.KindEmptyResponse:
		return http.StatusUnprocessableEntity
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status, Kind: kind})
}

func writeServiceError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	writeJSONError(w, status, llm.ErrorKind(err), err.Error())
	return status
}
