package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"inferd/internal/llm"
)

// stubBackend is a scripted llm.Backend.
type stubBackend struct {
	name      llm.Provider
	available bool
	ready     bool
	readyErr  error
	cls       llm.Classification
	out       string
	err       error

	mu      sync.Mutex
	calls   int
	prompts []string
	opts    []llm.CompletionOptions
}

func (s *stubBackend) Name() llm.Provider { return s.name }
func (s *stubBackend) IsAvailable() bool  { return s.available }
func (s *stubBackend) EnsureReady(context.Context) (bool, error) {
	return s.ready, s.readyErr
}

func (s *stubBackend) Classify(ctx context.Context, text string) (llm.Classification, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return llm.EmptyClassification(), s.err
	}
	return s.cls, nil
}

func (s *stubBackend) Complete(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
	s.mu.Lock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.opts = append(s.opts, opts)
	s.mu.Unlock()
	return s.out, s.err
}

func (s *stubBackend) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newRouter(local, cloud *stubBackend, preferCloud bool) *Router {
	opts := Options{Local: local, PreferCloud: preferCloud, Logger: zerolog.Nop()}
	if cloud != nil {
		opts.Cloud = cloud
	}
	return New(opts)
}

func TestClassifyFallsBackToLocal(t *testing.T) {
	local := &stubBackend{name: llm.ProviderLocal, available: true, cls: llm.Classification{Category: "local", Tags: []string{}}}
	cloud := &stubBackend{name: llm.ProviderCloud, available: true, err: &llm.NetworkError{Op: "cloud", StatusCode: 429}}
	r := newRouter(local, cloud, true)
	got, err := r.Classify(context.Background(), "text")
	if err != nil || got.Category != "local" {
		t.Fatalf("Classify=%+v,%v", got, err)
	}
	if r.LastProvider() != llm.ProviderLocal {
		t.Fatalf("last provider=%s", r.LastProvider())
	}
	if cloud.callCount() != 1 || local.callCount() != 1 {
		t.Fatalf("calls cloud=%d local=%d", cloud.callCount(), local.callCount())
	}
}

func TestClassifyPrefersAvailableCloud(t *testing.T) {
	local := &stubBackend{name: llm.ProviderLocal, available: true}
	cloud := &stubBackend{name: llm.ProviderCloud, available: true, cls: llm.Classification{Category: "cloud"}}
	r := newRouter(local, cloud, true)
	if got, _ := r.Classify(context.Background(), "x"); got.Category != "cloud" || r.LastProvider() != llm.ProviderCloud {
		t.Fatalf("got %+v via %s", got, r.LastProvider())
	}
	if local.callCount() != 0 {
		t.Fatalf("local called while cloud succeeded")
	}

	// unavailable cloud is skipped entirely
	cloud.available = false
	if _, err := r.Classify(context.Background(), "x"); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cloud.callCount() != 1 || r.LastProvider() != llm.ProviderLocal {
		t.Fatalf("unavailable cloud was called: %d", cloud.callCount())
	}
}

func TestLocalPreferenceNeverCallsCloud(t *testing.T) {
	local := &stubBackend{name: llm.ProviderLocal, available: true, err: llm.ErrConfiguration(llm.ConfigModelNotFound, "no model")}
	cloud := &stubBackend{name: llm.ProviderCloud, available: true, cls: llm.Classification{Category: "cloud"}}
	r := newRouter(local, cloud, false)
	_, err := r.Classify(context.Background(), "x")
	if llm.ConfigurationKind(err) != llm.ConfigModelNotFound {
		t.Fatalf("want local error, got %v", err)
	}
	if cloud.callCount() != 0 || r.LastProvider() != llm.ProviderNone {
		t.Fatalf("cloud calls=%d last=%s", cloud.callCount(), r.LastProvider())
	}
}

func TestTotalFailurePropagatesLocalError(t *testing.T) {
	localErr := &llm.TimeoutError{Op: "complete"}
	local := &stubBackend{name: llm.ProviderLocal, err: localErr}
	cloud := &stubBackend{name: llm.ProviderCloud, available: true, err: errors.New("cloud down")}
	r := newRouter(local, cloud, true)
	_, err := r.Complete(context.Background(), "p", llm.CompletionOptions{})
	if !errors.Is(err, localErr) {
		t.Fatalf("want local error, got %v", err)
	}
	if r.LastProvider() != llm.ProviderNone {
		t.Fatalf("last=%s", r.LastProvider())
	}
}

func TestCompleteEmptyTriggersFallback(t *testing.T) {
	local := &stubBackend{name: llm.ProviderLocal, out: "from local"}
	cloud := &stubBackend{name: llm.ProviderCloud, available: true, out: "  \n"}
	r := newRouter(local, cloud, true)
	out, err := r.Complete(context.Background(), "p", llm.CompletionOptions{})
	if err != nil || out != "from local" {
		t.Fatalf("Complete=%q,%v", out, err)
	}

	local.out = ""
	_, err = r.Complete(context.Background(), "p", llm.CompletionOptions{})
	if !llm.IsEmptyResponse(err) {
		t.Fatalf("want empty response error, got %v", err)
	}
}

func TestEnsureReadyOrder(t *testing.T) {
	startupErr := &llm.ProcessStartupError{Reason: "exit"}
	local := &stubBackend{name: llm.ProviderLocal, readyErr: startupErr}
	cloud := &stubBackend{name: llm.ProviderCloud, ready: true}
	if ok, err := newRouter(local, cloud, false).EnsureReady(context.Background()); !ok || err != nil {
		t.Fatalf("cloud readiness ignored: %v,%v", ok, err)
	}
	cloud.ready = false
	ok, err := newRouter(local, cloud, true).EnsureReady(context.Background())
	if ok || !errors.Is(err, startupErr) {
		t.Fatalf("EnsureReady=%v,%v", ok, err)
	}
	if ok, err := newRouter(&stubBackend{name: llm.ProviderLocal}, nil, false).EnsureReady(context.Background()); ok || err != nil {
		t.Fatalf("unconfigured: %v,%v", ok, err)
	}
}

func TestGenerateMutations(t *testing.T) {
	local := &stubBackend{name: llm.ProviderLocal, out: "Here you go:\n```json\n[" +
		`{"title": "A", "description": "first", "differences": ["x", " "]},` +
		`{"title": "", "description": "no title"},` +
		`{"title": "B", "description": "second"},` +
		`{"title": "C", "description": "third"},` +
		"]\n```"}
	r := newRouter(local, nil, false)
	got, err := r.GenerateMutations(context.Background(), "an idea", MutationOptions{Count: 2, Focus: "cost"})
	if err != nil {
		t.Fatalf("GenerateMutations: %v", err)
	}
	if len(got) != 2 || got[0].Title != "A" || got[1].Title != "B" {
		t.Fatalf("mutations=%+v", got)
	}
	if len(got[0].Differences) != 1 || got[1].Differences == nil {
		t.Fatalf("differences=%+v", got)
	}
	if o := local.opts[0]; o.Temperature != 0.9 || o.MaxTokens != 1024 {
		t.Fatalf("options=%+v", o)
	}
	if p := local.prompts[0]; !strings.Contains(p, "Produce 2 distinct") || !strings.Contains(p, "Focus on: cost") || !strings.Contains(p, "an idea") {
		t.Fatalf("prompt=%q", p)
	}
}

func TestGenerateMutationsFailures(t *testing.T) {
	local := &stubBackend{name: llm.ProviderLocal, out: "   "}
	r := newRouter(local, nil, false)
	_, err := r.GenerateMutations(context.Background(), "idea", MutationOptions{})
	if !llm.IsEmptyResponse(err) || llm.IsRepair(err) {
		t.Fatalf("empty completion must be an empty response error, got %v", err)
	}

	local.out = "I have no ideas."
	_, err = r.GenerateMutations(context.Background(), "idea", MutationOptions{})
	var re *llm.RepairError
	if !errors.As(err, &re) || re.Reason != "no_json" {
		t.Fatalf("want no_json repair error, got %v", err)
	}

	local.out = `[{"title": "only title"}]`
	_, err = r.GenerateMutations(context.Background(), "idea", MutationOptions{})
	if !errors.As(err, &re) || re.Reason != "no_valid_entries" {
		t.Fatalf("want no_valid_entries, got %v", err)
	}
}

func TestMutationCountBounds(t *testing.T) {
	for in, want := range map[int]int{0: 5, -1: 5, 3: 3, 10: 10, 50: 10} {
		if got := mutationCount(in); got != want {
			t.Fatalf("mutationCount(%d)=%d want %d", in, got, want)
		}
	}
}

func TestExpandAndReorganize(t *testing.T) {
	idea := "# Plan\n\n## Goals\n\n## Risks\n\n## Budget\n"
	local := &stubBackend{name: llm.ProviderLocal, out: "```markdown\n# Plan\n\n## Risks\n\n## Goals\n\n## Timeline\n```"}
	r := newRouter(local, nil, false)

	res, err := r.ReorganizeIdea(context.Background(), idea, IdeaOptions{Instructions: "be brief"})
	if err != nil {
		t.Fatalf("ReorganizeIdea: %v", err)
	}
	if res.Provider != llm.ProviderLocal || strings.HasPrefix(res.Text, "```") {
		t.Fatalf("result=%+v", res)
	}
	if len(res.Headings) != 4 || res.Outline != "- Plan\n  - Risks\n  - Goals\n  - Timeline" {
		t.Fatalf("headings=%+v outline=%q", res.Headings, res.Outline)
	}
	if strings.Join(res.Diff.Added, ",") != "Timeline" || strings.Join(res.Diff.Removed, ",") != "Budget" {
		t.Fatalf("diff=%+v", res.Diff)
	}
	if len(res.Diff.Reordered) != 1 {
		t.Fatalf("reordered=%v", res.Diff.Reordered)
	}
	if o := local.opts[0]; o.Temperature != 0.3 || o.MaxTokens != 2048 {
		t.Fatalf("reorganize options=%+v", o)
	}

	local.out = "plain prose without headings"
	res, err = r.ExpandIdea(context.Background(), idea, IdeaOptions{})
	if err != nil {
		t.Fatalf("ExpandIdea: %v", err)
	}
	if len(res.Headings) != 0 || len(res.Diff.Removed) != 4 {
		t.Fatalf("expand=%+v", res)
	}
	if o := local.opts[1]; o.Temperature != 0.7 || o.MaxTokens != 2048 {
		t.Fatalf("expand options=%+v", o)
	}

	local.out = ""
	if _, err := r.ExpandIdea(context.Background(), idea, IdeaOptions{}); !llm.IsEmptyResponse(err) {
		t.Fatalf("want empty response, got %v", err)
	}
}
