package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"info":    zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	t.Setenv("ENV", "production")

	var buf bytes.Buffer
	log := NewWithWriter(&buf, "recipememo-api", "info", "json")
	log.Debug().Msg("hidden")
	log.Info().Str("recipe_id", "r1").Msg("visible")

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "recipememo-api" {
		t.Errorf("Expected service field, got %v", entry["service"])
	}
	if entry["recipe_id"] != "r1" {
		t.Errorf("Expected recipe_id field, got %v", entry["recipe_id"])
	}
	if entry["message"] != "visible" {
		t.Errorf("Expected message 'visible', got %v", entry["message"])
	}
}
