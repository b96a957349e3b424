// Package llm holds the contract shared by every inference backend: the
// Backend interface, completion options, the classification result shape and
// the error taxonomy used across the router, clients and HTTP layer.
package llm

import "context"

// Provider identifies which backend served a request.
type Provider string

const (
	ProviderNone  Provider = "none"
	ProviderLocal Provider = "local"
	ProviderCloud Provider = "cloud"
)

// Backend is implemented by the local inference client and by every cloud
// client. All implementations report failures with the same error taxonomy so
// the router can treat them uniformly.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() Provider
	// IsAvailable reports whether the backend is configured to serve requests.
	// It must not block.
	IsAvailable() bool
	// EnsureReady prepares the backend. It returns false without error when the
	// backend is simply not configured.
	EnsureReady(ctx context.Context) (bool, error)
	// Classify categorises short text. Unparsable model output yields the zero
	// Classification rather than an error.
	Classify(ctx context.Context, text string) (Classification, error)
	// Complete returns the raw completion text.
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// CompletionOptions are per-request generation parameters.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
	Stop        []string
	// Grammar is a GBNF grammar; backends without grammar support ignore it.
	Grammar string
}

// Classification is the structured result of Classify.
type Classification struct {
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
}

// EmptyClassification is the zero-confidence result returned when the model
// output cannot be used.
func EmptyClassification() Classification {
	return Classification{Category: "", Tags: []string{}, Confidence: 0}
}

// Notifier is the host's fire-and-forget user-visible message primitive.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

// NopNotifier drops every message.
func NopNotifier() Notifier { return nopNotifier{} }
