package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"inferd/internal/testutil"
	"inferd/pkg/types"
)

func TestMain(m *testing.M) {
	code := m.Run()
	testutil.Cleanup()
	os.Exit(code)
}

func TestSetupLayersFileEnvAndFlags(t *testing.T) {
	d := t.TempDir()
	cfgPath := filepath.Join(d, "inferd.yaml")
	if err := os.WriteFile(cfgPath, []byte("provider: local\nlocal:\n  port: 9001\nlog:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	env := map[string]string{"INFERD_LOCAL_PORT": "9002", "INFERD_CLOUD_API_KEY": "sk"}
	c := &cli{
		configPath: cfgPath,
		envFile:    filepath.Join(d, "missing.env"),
		logLevel:   "debug",
		getenv:     func(k string) string { return env[k] },
	}
	if err := c.setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer c.closer.Close()
	if c.cfg.Local.Port != 9002 || c.cfg.Cloud.APIKey != "sk" || c.cfg.Log.Level != "debug" {
		t.Fatalf("cfg=%+v", c.cfg)
	}
}

func TestSetupLoadsDotenv(t *testing.T) {
	d := t.TempDir()
	envFile := filepath.Join(d, ".env")
	if err := os.WriteFile(envFile, []byte("INFERD_TEST_DOTENV_MODEL=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("INFERD_TEST_DOTENV_MODEL") })
	c := &cli{envFile: envFile, getenv: func(k string) string {
		if k == "INFERD_CLOUD_MODEL" {
			return os.Getenv("INFERD_TEST_DOTENV_MODEL")
		}
		return ""
	}}
	if err := c.setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if c.cfg.Cloud.Model != "from-dotenv" {
		t.Fatalf("model=%q", c.cfg.Cloud.Model)
	}
}

func TestSetupRejectsBadConfig(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "inferd.ini")
	_ = os.WriteFile(p, []byte("x"), 0o644)
	c := &cli{configPath: p, getenv: func(string) string { return "" }}
	if err := c.setup(); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{{"serve"}, {"classify"}, {"complete"}, {"ideas", "mutations"}, {"ideas", "expand"}, {"ideas", "reorganize"}, {"warmup"}, {"status"}} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Fatalf("command %v missing: %v", path, err)
		}
	}
}

func TestBaseURL(t *testing.T) {
	cases := map[string]string{
		":8765":                  "http://127.0.0.1:8765",
		"127.0.0.1:9000":         "http://127.0.0.1:9000",
		"http://example.local/":  "http://example.local",
		"https://secure.local:1": "https://secure.local:1",
	}
	for in, want := range cases {
		if got := baseURL(in); got != want {
			t.Fatalf("baseURL(%q)=%q want %q", in, got, want)
		}
	}
}

func TestFetchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(types.StatusResponse{Provider: "local", LastProvider: "cloud"})
	}))
	defer srv.Close()
	var buf bytes.Buffer
	if err := fetchStatus(context.Background(), srv.URL, &buf); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(buf.String(), `"last_provider": "cloud"`) {
		t.Fatalf("output=%s", buf.String())
	}
	if err := fetchStatus(context.Background(), srv.URL+"/nope", &buf); err == nil {
		t.Fatalf("expected HTTP error")
	}
}
