// Package httpapi exposes the inference service over a chi router.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inferd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Classify(ctx context.Context, req types.ClassifyRequest) (types.ClassifyResponse, error)
	Complete(ctx context.Context, req types.CompleteRequest) (types.CompleteResponse, error)
	Mutations(ctx context.Context, req types.MutationsRequest) (types.MutationsResponse, error)
	Expand(ctx context.Context, req types.IdeaRequest) (types.IdeaResponse, error)
	Reorganize(ctx context.Context, req types.IdeaRequest) (types.IdeaResponse, error)
	Warmup(ctx context.Context) (types.WarmupResponse, error)
	Status() types.StatusResponse
	Ready() bool
}

// NewMux builds the HTTP handler for svc.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/classify", jsonHandler("classify", svc.Classify, func(req types.ClassifyRequest) string {
			return required("text", req.Text)
		}))
		r.Post("/complete", jsonHandler("complete", svc.Complete, func(req types.CompleteRequest) string {
			if req.MaxTokens < 0 {
				return "max_tokens must not be negative"
			}
			return required("prompt", req.Prompt)
		}))
		r.Route("/ideas", func(r chi.Router) {
			r.Post("/mutations", jsonHandler("mutations", svc.Mutations, func(req types.MutationsRequest) string {
				if req.Count < 0 {
					return "count must not be negative"
				}
				return required("idea", req.Idea)
			}))
			r.Post("/expand", jsonHandler("expand", svc.Expand, func(req types.IdeaRequest) string {
				return required("idea", req.Idea)
			}))
			r.Post("/reorganize", jsonHandler("reorganize", svc.Reorganize, func(req types.IdeaRequest) string {
				return required("idea", req.Idea)
			}))
		})
		r.Post("/warmup", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := requestContext(r)
			defer cancel()
			resp, err := svc.Warmup(ctx)
			if err != nil && (r.Context().Err() != nil || serverBaseCtx.Err() != nil) {
				return
			}
			status := http.StatusOK
			if !resp.Ready {
				status = http.StatusServiceUnavailable
			}
			logEnd(r, "warmup", status, time.Time{}, err)
			writeJSON(w, status, resp)
		})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func required(field, v string) string {
	if strings.TrimSpace(v) == "" {
		return field + " is required"
	}
	return ""
}

// jsonHandler decodes a Req, validates it, calls the service and encodes the
// Resp, mapping service errors through statusFor.
func jsonHandler[Req, Resp any](op string, call func(context.Context, Req) (Resp, error), validate func(Req) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, kindBadRequest, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req Req
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, kindBadRequest, "request body too large")
				return
			}
			writeJSONError(w, http.StatusBadRequest, kindBadRequest, "invalid JSON body")
			return
		}
		if msg := validate(req); msg != "" {
			writeJSONError(w, http.StatusBadRequest, kindBadRequest, msg)
			return
		}

		start := time.Now()
		if requestLogLevel(r) >= LevelInfo {
			withRequestID(zlog.Info(), r).Str("op", op).Msg("request start")
		}
		ctx, cancel := requestContext(r)
		defer cancel()
		resp, err := call(ctx, req)
		if err != nil {
			// Client went away or the server is shutting down.
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := writeServiceError(w, err)
			logEnd(r, op, status, start, err)
			return
		}
		logEnd(r, op, http.StatusOK, start, nil)
		writeJSON(w, http.StatusOK, resp)
	}
}

// requestContext joins the server base context with the request context so
// shutdown cancels work too, and applies the handler timeout.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	if handlerTimeout <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, handlerTimeout)
	return tctx, func() { tcancel(); cancel() }
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
