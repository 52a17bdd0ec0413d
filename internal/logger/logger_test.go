package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("Expected info level, got %s", log.GetLevel())
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{"debug", "debug", zerolog.DebugLevel},
		{"upper case", "WARN", zerolog.WarnLevel},
		{"unknown falls back to info", "chatty", zerolog.InfoLevel},
		{"empty falls back to info", "", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := Setup(tt.level, FormatJSON, &bytes.Buffer{})
			if log.GetLevel() != tt.want {
				t.Errorf("level = %s, want %s", log.GetLevel(), tt.want)
			}
		})
	}
}

func TestSetupJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	log := Setup("info", FormatJSON, buf)

	log.Debug().Msg("hidden")
	log.Info().Str("path", "data/database.csv").Msg("Ledger loaded")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected one log line, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON output: %v", err)
	}
	if entry["message"] != "Ledger loaded" || entry["path"] != "data/database.csv" {
		t.Errorf("Unexpected entry: %v", entry)
	}
}

func TestSetupConsole(t *testing.T) {
	buf := &bytes.Buffer{}
	log := Setup("info", FormatConsole, buf)

	log.Info().Msg("test message")

	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", buf.String())
	}
	if strings.HasPrefix(buf.String(), "{") {
		t.Error("Console output should not be JSON")
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", buf.String())
	}
}

func TestWithContext(t *testing.T) {
	log := New()
	ctx := WithContext(context.Background(), log)

	if ctx.Value(LoggerKey) == nil {
		t.Error("Expected logger in context, got nil")
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	retrieved := FromContext(ctx)
	retrieved.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())

	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"request_id": "abc-123",
		"command":    "get_total",
	})

	log.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, `"request_id":"abc-123"`) {
		t.Errorf("Expected output to contain request_id field, got: %s", output)
	}
	if !strings.Contains(output, `"command":"get_total"`) {
		t.Errorf("Expected output to contain command field, got: %s", output)
	}
}
