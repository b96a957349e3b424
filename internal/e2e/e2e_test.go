package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"inferd/internal/config"
	"inferd/internal/testutil"
	"inferd/pkg/types"
)

func TestClassifyOverHTTPSpawnsOnce(t *testing.T) {
	spawnLog := filepath.Join(t.TempDir(), "spawns")
	t.Setenv("FAKE_LLAMA_SPAWN_LOG", spawnLog)
	t.Setenv("FAKE_LLAMA_CONTENT", `{"category": "Errands", "tags": ["groceries"], "confidence": 70}`)
	srv, _ := newServer(t, fakeConfig(t))

	if code := getJSON(t, srv.URL+"/readyz", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before first request=%d", code)
	}

	var wg sync.WaitGroup
	results := make([]types.ClassifyResponse, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = classify(srv.URL, "buy milk", &results[i])
		}(i)
	}
	wg.Wait()
	for i, r := range results {
		if errs[i] != nil || r.Category != "Errands" || r.Confidence != 0.7 || r.Provider != "local" {
			t.Fatalf("request %d: err=%v resp=%+v", i, errs[i], r)
		}
	}
	if n := testutil.SpawnCount(t, spawnLog); n != 1 {
		t.Fatalf("spawned %d servers", n)
	}

	var st types.StatusResponse
	if code := getJSON(t, srv.URL+"/status", &st); code != http.StatusOK {
		t.Fatalf("status code=%d", code)
	}
	if st.Local.State != "ready" || !st.Local.Health.IsRunning || st.Local.Band != "small" || st.LastProvider != "local" {
		t.Fatalf("status=%+v", st.Local)
	}
	names := map[string]bool{}
	for _, e := range st.Events {
		names[e.Name] = true
	}
	if !names["spawn_start"] || !names["spawn_ready"] {
		t.Fatalf("events=%+v", st.Events)
	}
	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz after spawn=%d", resp.StatusCode)
	}
}

func TestCloudFailureFallsBackToLocal(t *testing.T) {
	t.Setenv("FAKE_LLAMA_CONTENT", "# Lemonade stand\n\n## Pricing\n\nOne dollar.\n\n## Location\n\nCorner.")
	cloud := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer cloud.Close()

	cfg := fakeConfig(t)
	cfg.Provider = config.ProviderCloud
	cfg.Cloud.BaseURL = cloud.URL
	cfg.Cloud.APIKey = "sk-test"
	srv, _ := newServer(t, cfg)

	var res types.IdeaResponse
	code := postJSON(t, srv.URL+"/v1/ideas/expand", types.IdeaRequest{Idea: "# Lemonade stand\n\n## Pricing\n"}, &res)
	if code != http.StatusOK {
		t.Fatalf("code=%d", code)
	}
	if res.Provider != "local" || len(res.Headings) != 3 {
		t.Fatalf("res=%+v", res)
	}
	if len(res.Diff.Added) != 1 || res.Diff.Added[0] != "Location" {
		t.Fatalf("diff=%+v", res.Diff)
	}
}

func TestMissingModelIsServiceUnavailable(t *testing.T) {
	cfg := fakeConfig(t)
	cfg.Local.ModelPath = filepath.Join(t.TempDir(), "gone.gguf")
	cfg.Local.ModelsDir = t.TempDir()
	srv, _ := newServer(t, cfg)

	var e types.ErrorResponse
	code := postJSON(t, srv.URL+"/v1/complete", types.CompleteRequest{Prompt: "hi"}, &e)
	if code != http.StatusServiceUnavailable || e.Kind != "configuration" {
		t.Fatalf("code=%d err=%+v", code, e)
	}
	var st types.StatusResponse
	getJSON(t, srv.URL+"/status", &st)
	if st.Local.Unavailable == "" || st.Local.State != "not_loaded" {
		t.Fatalf("status=%+v", st.Local)
	}
}

func TestWarmupEndpoint(t *testing.T) {
	srv, a := newServer(t, fakeConfig(t))
	var w types.WarmupResponse
	if code := postJSON(t, srv.URL+"/v1/warmup", nil, &w); code != http.StatusOK || !w.Ready || w.LocalState != "ready" {
		t.Fatalf("code=%d warmup=%+v", code, w)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st := a.Status(); st.Local.State != "not_loaded" || st.Local.Health.IsRunning {
		t.Fatalf("after close=%+v", st.Local)
	}
}

// classify is postJSON for use off the test goroutine.
func classify(base, text string, out *types.ClassifyResponse) error {
	b, _ := json.Marshal(types.ClassifyRequest{Text: text})
	resp, err := http.Post(base+"/v1/classify", "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
