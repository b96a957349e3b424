// Package router dispatches inference between a cloud backend and the local
// backend. Cloud failures fall back to local; local failures propagate.
package router

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"inferd/internal/llm"
)

// Options configures a Router. Local is required; Cloud may be nil.
type Options struct {
	Local       llm.Backend
	Cloud       llm.Backend
	PreferCloud bool
	Logger      zerolog.Logger
}

// Router is safe for concurrent use.
type Router struct {
	local       llm.Backend
	cloud       llm.Backend
	preferCloud bool
	log         zerolog.Logger

	mu   sync.Mutex
	last llm.Provider
}

func New(opts Options) *Router {
	return &Router{
		local:       opts.Local,
		cloud:       opts.Cloud,
		preferCloud: opts.PreferCloud,
		log:         opts.Logger.With().Str("component", "router").Logger(),
		last:        llm.ProviderNone,
	}
}

// LastProvider reports which backend served the most recent request, or
// ProviderNone if it failed everywhere.
func (r *Router) LastProvider() llm.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Preference is the backend tried first for requests.
func (r *Router) Preference() llm.Provider {
	if r.cloudFirst() {
		return llm.ProviderCloud
	}
	return llm.ProviderLocal
}

func (r *Router) setLast(p llm.Provider) {
	r.mu.Lock()
	r.last = p
	r.mu.Unlock()
}

func (r *Router) cloudFirst() bool {
	return r.preferCloud && r.cloud != nil && r.cloud.IsAvailable()
}

// chain is the request order: cloud then local when cloud is preferred and
// available, otherwise local only.
func (r *Router) chain() []llm.Backend {
	if r.cloudFirst() {
		return []llm.Backend{r.cloud, r.local}
	}
	return []llm.Backend{r.local}
}

// run calls fn on each backend of the chain until one succeeds. The error of
// the last backend tried, always local, is returned.
func (r *Router) run(op string, fn func(b llm.Backend) error) (llm.Provider, error) {
	backends := r.chain()
	var err error
	for i, b := range backends {
		err = fn(b)
		if err == nil {
			requestsTotal.WithLabelValues(string(b.Name()), op, "ok").Inc()
			r.setLast(b.Name())
			return b.Name(), nil
		}
		requestsTotal.WithLabelValues(string(b.Name()), op, outcome(err)).Inc()
		if i < len(backends)-1 {
			fallbacksTotal.WithLabelValues(op).Inc()
			r.log.Warn().Str("op", op).Str("backend", string(b.Name())).
				Str("kind", llm.ErrorKind(err)).Err(err).Msg("backend failed; falling back")
		}
	}
	r.setLast(llm.ProviderNone)
	return llm.ProviderNone, err
}

func outcome(err error) string {
	if k := llm.ErrorKind(err); k != "" {
		return k
	}
	return "error"
}

// Classify categorises text, degrading to local when the cloud fails.
func (r *Router) Classify(ctx context.Context, text string) (llm.Classification, error) {
	cls, _, err := r.ClassifyFrom(ctx, text)
	return cls, err
}

// ClassifyFrom is Classify that also reports the serving backend.
func (r *Router) ClassifyFrom(ctx context.Context, text string) (llm.Classification, llm.Provider, error) {
	var out llm.Classification
	p, err := r.run("classify", func(b llm.Backend) error {
		cls, err := b.Classify(ctx, text)
		if err != nil {
			return err
		}
		out = cls
		return nil
	})
	if err != nil {
		return llm.EmptyClassification(), p, err
	}
	return out, p, nil
}

// EnsureReady warms backends in preference order and reports true as soon
// as one is ready. A local error is returned only when nothing is ready.
func (r *Router) EnsureReady(ctx context.Context) (bool, error) {
	order := []llm.Backend{r.local}
	if r.cloud != nil {
		if r.preferCloud {
			order = []llm.Backend{r.cloud, r.local}
		} else {
			order = append(order, r.cloud)
		}
	}
	var localErr error
	for _, b := range order {
		ok, err := b.EnsureReady(ctx)
		if ok {
			return true, nil
		}
		if err != nil {
			r.log.Warn().Str("backend", string(b.Name())).Err(err).Msg("backend not ready")
			if b.Name() == llm.ProviderLocal {
				localErr = err
			}
		}
	}
	return false, localErr
}

// Complete returns raw completion text. Empty output counts as a failure.
func (r *Router) Complete(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
	out, _, err := r.complete(ctx, "complete", prompt, opts)
	return out, err
}

// CompleteFrom is Complete that also reports the serving backend.
func (r *Router) CompleteFrom(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, llm.Provider, error) {
	return r.complete(ctx, "complete", prompt, opts)
}

func (r *Router) complete(ctx context.Context, op, prompt string, opts llm.CompletionOptions) (string, llm.Provider, error) {
	var out string
	p, err := r.run(op, func(b llm.Backend) error {
		s, err := b.Complete(ctx, prompt, opts)
		if err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			return &llm.EmptyResponseError{Op: op, Provider: b.Name()}
		}
		out = s
		return nil
	})
	return out, p, err
}
