package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Provider = "gpu"
	cfg.Local.Port = 0
	cfg.Local.ServerKind = "vllm"
	cfg.Log.Level = "loud"
	cfg.RequestTimeout = 0
	cfg.HTTP.HandlerTimeout = Duration(-time.Second)
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"provider", "local.port", "local.server_kind", "log.level", "request_timeout", "http.handler_timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %s", err, want)
		}
	}
}

func TestValidateCloudNeedsBaseURL(t *testing.T) {
	cfg := Default()
	cfg.Provider = ProviderCloud
	cfg.Cloud.BaseURL = " "
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "cloud.base_url") {
		t.Fatalf("expected base_url error, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"INFERD_PROVIDER":        "cloud",
		"INFERD_CLOUD_API_KEY":   "sk-env",
		"INFERD_IDLE_UNLOAD":     "90",
		"INFERD_KEEP_LOADED":     "true",
		"INFERD_LOCAL_PORT":      "9100",
		"INFERD_CORS_ORIGINS":    "http://a, http://b,",
		"INFERD_LOG_LEVEL":       "warn",
		"INFERD_STARTUP_TIMEOUT": "2m",
	}
	cfg := Default()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Provider != ProviderCloud || cfg.Cloud.APIKey != "sk-env" || !cfg.KeepLoaded {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.IdleUnload.D() != 90*time.Second || cfg.Local.StartupTimeout.D() != 2*time.Minute {
		t.Fatalf("durations: %v %v", cfg.IdleUnload, cfg.Local.StartupTimeout)
	}
	if cfg.Local.Port != 9100 || cfg.Log.Level != "warn" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if !cfg.HTTP.CORSEnabled || len(cfg.HTTP.CORSAllowedOrigins) != 2 || cfg.HTTP.CORSAllowedOrigins[1] != "http://b" {
		t.Fatalf("cors: %+v", cfg.HTTP)
	}
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	env := map[string]string{"INFERD_LOCAL_PORT": "eighty", "INFERD_KEEP_LOADED": "maybe"}
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) string { return env[k] })
	if err == nil || !strings.Contains(err.Error(), "INFERD_LOCAL_PORT") || !strings.Contains(err.Error(), "INFERD_KEEP_LOADED") {
		t.Fatalf("expected both errors, got %v", err)
	}
	if cfg.Local.Port != Default().Local.Port {
		t.Fatalf("bad value must not overwrite the field")
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1h30m")); err != nil || d.D() != 90*time.Minute {
		t.Fatalf("got %v %v", d, err)
	}
	if err := d.UnmarshalJSON([]byte(`"2s"`)); err != nil || d.D() != 2*time.Second {
		t.Fatalf("got %v %v", d, err)
	}
	if err := d.UnmarshalJSON([]byte(`true`)); err == nil {
		t.Fatalf("expected error for bool")
	}
	b, _ := Duration(5 * time.Second).MarshalText()
	if string(b) != "5s" {
		t.Fatalf("marshal: %s", b)
	}
}
