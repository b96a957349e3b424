package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `provider: local
request_timeout: 45s
idle_unload: 10m
local:
  model_path: /m/tiny.gguf
  port: 9000
  extra_args: ["--mlock"]
cloud:
  api_key: sk-test
log:
  level: debug
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RequestTimeout.D() != 45*time.Second || cfg.IdleUnload.D() != 10*time.Minute {
		t.Fatalf("durations: %+v", cfg)
	}
	if cfg.Local.ModelPath != "/m/tiny.gguf" || cfg.Local.Port != 9000 || len(cfg.Local.ExtraArgs) != 1 {
		t.Fatalf("local: %+v", cfg.Local)
	}
	if cfg.Cloud.APIKey != "sk-test" || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	// untouched fields keep defaults
	if cfg.Local.Host != "127.0.0.1" || cfg.Cloud.Model != "gpt-4o-mini" || cfg.Local.StopTimeout.D() != 5*time.Second {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"provider":"cloud","request_timeout":30,"local":{"start_grace":"500ms"},"http":{"addr":":7070"}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider != ProviderCloud || cfg.RequestTimeout.D() != 30*time.Second {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Local.StartGrace.D() != 500*time.Millisecond || cfg.HTTP.Addr != ":7070" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if !cfg.CloudPreferred() || !cfg.LocalEnabled() {
		t.Fatalf("provider cloud must prefer cloud and keep local as fallback")
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "provider = \"none\"\nidle_unload = \"0s\"\nkeep_loaded = true\n\n[local]\nserver_kind = \"llamafile\"\nctx_size = 2048\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider != ProviderNone || cfg.IdleUnload != 0 || !cfg.KeepLoaded {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Local.ServerKind != "llamafile" || cfg.Local.CtxSize != 2048 {
		t.Fatalf("local: %+v", cfg.Local)
	}
	if cfg.LocalEnabled() {
		t.Fatalf("provider none must disable local")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	p = writeTempFile(t, d, "bad.yaml", "request_timeout: soon\n")
	if _, err := Load(p); err == nil || !strings.Contains(err.Error(), "duration") {
		t.Fatalf("expected duration error, got %v", err)
	}
	if _, err := Load(filepath.Join(d, "missing.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestLoadOptional(t *testing.T) {
	cfg, err := LoadOptional("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != Default().HTTP.Addr {
		t.Fatalf("want defaults, got %+v", cfg)
	}
}
