package supervisor

import (
	"strings"
	"sync"
)

// ReadinessMatcher classifies server output lines.
type ReadinessMatcher interface {
	// Ready reports whether line announces that the server accepts requests.
	Ready(line string) bool
	// Fatal reports whether line announces a failure.
	Fatal(line string) bool
}

// PatternMatcher matches lowercase substrings. Informational substrings veto
// a fatal match for lines that normal model loading emits.
type PatternMatcher struct {
	ReadyPatterns []string
	FatalPatterns []string
	Informational []string
}

func (m PatternMatcher) Ready(line string) bool {
	return containsAny(strings.ToLower(line), m.ReadyPatterns)
}

func (m PatternMatcher) Fatal(line string) bool {
	l := strings.ToLower(line)
	if containsAny(l, m.Informational) {
		return false
	}
	return containsAny(l, m.FatalPatterns)
}

func containsAny(s string, subs []string) bool {
	for _, p := range subs {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

var defaultFatal = []string{"error", "failed", "fatal", "abort", "exception"}

var defaultInformational = []string{
	"llama_model_loader:",
	"print_info:",
	"load_tensors:",
	"ggml_cuda_init",
	"no usable gpu",
	"warning",
}

// LlamaCppMatcher recognises llama.cpp llama-server banners.
var LlamaCppMatcher = PatternMatcher{
	ReadyPatterns: []string{"server is listening on", "http server listening", "listening at http"},
	FatalPatterns: defaultFatal,
	Informational: defaultInformational,
}

// LlamafileMatcher recognises llamafile's server banner.
var LlamafileMatcher = PatternMatcher{
	ReadyPatterns: []string{"llama server listening at", "server is listening on"},
	FatalPatterns: defaultFatal,
	Informational: defaultInformational,
}

var (
	matchersMu sync.RWMutex
	matchers   = map[string]ReadinessMatcher{
		"llama.cpp": LlamaCppMatcher,
		"llamafile": LlamafileMatcher,
	}
)

// RegisterMatcher installs the matcher used for a server kind.
func RegisterMatcher(kind string, m ReadinessMatcher) {
	matchersMu.Lock()
	defer matchersMu.Unlock()
	matchers[strings.ToLower(kind)] = m
}

// MatcherFor returns the matcher for a server kind; unknown kinds fall back
// to the llama.cpp matcher.
func MatcherFor(kind string) ReadinessMatcher {
	matchersMu.RLock()
	defer matchersMu.RUnlock()
	if m, ok := matchers[strings.ToLower(strings.TrimSpace(kind))]; ok {
		return m
	}
	return LlamaCppMatcher
}
