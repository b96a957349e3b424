package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"inferd/internal/config"
)

func TestNewWritesRotatingFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "logs", "inferd.log")
	log, closer, err := New(config.LogConfig{Level: "debug", File: p, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Debug().Str("event", "spawn_start").Msg("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), `"event":"spawn_start"`) || !strings.Contains(string(b), `"message":"hello"`) {
		t.Fatalf("unexpected log: %s", b)
	}
}

func TestNewLevel(t *testing.T) {
	log, _, err := New(config.LogConfig{Level: "WARN"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if log.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("level=%v", log.GetLevel())
	}
	if _, _, err := New(config.LogConfig{Level: "chatty"}); err == nil {
		t.Fatalf("expected level error")
	}
}
