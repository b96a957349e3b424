package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseClassification(t *testing.T) {
	got, err := ParseClassification("```json\n{\"category\":\"Project\",\"tags\":[\"Go\",\"go\",\" cli \"],\"confidence\":0.82}\n```")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Category != "Project" || got.Confidence != 0.82 {
		t.Fatalf("unexpected: %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "go" || got.Tags[1] != "cli" {
		t.Fatalf("tags not normalised: %v", got.Tags)
	}
}

func TestParseClassificationPercentConfidence(t *testing.T) {
	got, err := ParseClassification(`{"category":"x","tags":[],"confidence":85}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Confidence != 0.85 {
		t.Fatalf("confidence=%v", got.Confidence)
	}
}

func TestParseClassificationFailureIsZero(t *testing.T) {
	for _, raw := range []string{"Not JSON", "", `{"tags":["a"]}`} {
		got, err := ParseClassification(raw)
		if err == nil {
			t.Fatalf("expected error for %q", raw)
		}
		if got.Category != "" || got.Confidence != 0 || got.Tags == nil || len(got.Tags) != 0 {
			t.Fatalf("expected empty classification for %q, got %+v", raw, got)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{ErrConfiguration(ConfigBinaryNotFound, "x"), KindConfiguration},
		{&ProcessStartupError{Reason: "exit"}, KindProcessStartup},
		{&TimeoutError{Op: "complete"}, KindTimeout},
		{&NetworkError{Op: "complete", StatusCode: 500}, KindNetwork},
		{&RepairError{Op: "mutations", Reason: "no_json"}, KindRepair},
		{&EmptyResponseError{Op: "mutations", Provider: ProviderLocal}, KindEmptyResponse},
		{errors.New("plain"), ""},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		if got := ErrorKind(wrapped); got != tc.kind {
			t.Fatalf("ErrorKind(%v)=%q want %q", tc.err, got, tc.kind)
		}
	}
	if ConfigurationKind(fmt.Errorf("w: %w", ErrConfiguration(ConfigNeitherFound, "n"))) != ConfigNeitherFound {
		t.Fatalf("ConfigurationKind lost through wrapping")
	}
	if !IsTimeout(&TimeoutError{}) || IsNetwork(&TimeoutError{}) {
		t.Fatalf("Is* helpers disagree")
	}
}
