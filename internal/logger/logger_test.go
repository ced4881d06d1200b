package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	cfg := DefaultConfig()
	l := New(cfg)

	if l == nil {
		t.Fatal("New() returned nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != InfoLevel {
		t.Errorf("Level = %v, want InfoLevel", cfg.Level)
	}
	if !cfg.Pretty {
		t.Error("Pretty should be true by default")
	}
	if cfg.Output == nil {
		t.Error("Output should not be nil")
	}
}

func newBufferLogger(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(Config{
		Level:  level,
		Pretty: false,
		Output: &buf,
	})
	return l, &buf
}

func TestLogger_WithComponent(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l = l.WithComponent("test-component")
	l.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "test-component") {
		t.Errorf("Output should contain component: %s", output)
	}
}

func TestLogger_WithField(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l = l.WithField("custom_field", "custom_value")
	l.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "custom_field") {
		t.Errorf("Output should contain custom_field: %s", output)
	}
	if !strings.Contains(output, "custom_value") {
		t.Errorf("Output should contain custom_value: %s", output)
	}
}

func TestLogger_WithURL(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l = l.WithURL("https://example.com/test")
	l.Info("scanning")

	output := buf.String()
	if !strings.Contains(output, "https://example.com/test") {
		t.Errorf("Output should contain URL: %s", output)
	}
}

func TestLogger_WithLayer(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l = l.WithLayer(2)
	l.Info("operating picker")

	output := buf.String()
	if !strings.Contains(output, "layer") {
		t.Errorf("Output should contain layer field: %s", output)
	}
}

func TestLogger_WithError(t *testing.T) {
	l, _ := newBufferLogger(InfoLevel)

	l = l.WithError(nil) // Even nil error should work
	l.Info("error context")

	// Just verify no panic
}

func TestLogger_WithDuration(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l = l.WithDuration(500 * time.Millisecond)
	l.Info("completed")

	output := buf.String()
	if !strings.Contains(output, "duration") {
		t.Errorf("Output should contain duration: %s", output)
	}
}

func TestLogger_Debugf(t *testing.T) {
	l, buf := newBufferLogger(DebugLevel)

	l.Debugf("debug %s %d", "test", 123)

	output := buf.String()
	if !strings.Contains(output, "debug test 123") {
		t.Errorf("Output should contain formatted message: %s", output)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(WarnLevel)

	l.Debug("debug")
	l.Info("info")
	l.Warn("warning")
	l.Error("error")

	output := buf.String()

	// Debug and Info should be filtered
	if strings.Contains(output, "debug") {
		t.Error("Debug should be filtered")
	}
	if strings.Contains(output, `"info"`) {
		t.Error("Info should be filtered")
	}

	// Warn and Error should be present
	if !strings.Contains(output, "warning") {
		t.Error("Warning should be present")
	}
	if !strings.Contains(output, "error") {
		t.Error("Error should be present")
	}
}

func TestLogger_CandidateEvent(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l.CandidateEvent("https://example.com/api/annList.do", "POST", 0.85, 1)

	output := buf.String()
	if !strings.Contains(output, "https://example.com/api/annList.do") {
		t.Errorf("Output should contain URL: %s", output)
	}
	if !strings.Contains(output, "POST") {
		t.Errorf("Output should contain method: %s", output)
	}
	if !strings.Contains(output, "0.85") {
		t.Errorf("Output should contain confidence: %s", output)
	}
}

func TestLogger_ReplayEvent(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l.ReplayEvent("GET", "https://example.com/api", 200, 25, 100*time.Millisecond)

	output := buf.String()
	if !strings.Contains(output, "GET") {
		t.Errorf("Output should contain method: %s", output)
	}
	if !strings.Contains(output, "200") {
		t.Errorf("Output should contain status code: %s", output)
	}
	if !strings.Contains(output, "25") {
		t.Errorf("Output should contain item count: %s", output)
	}
}

func TestLogger_LayerEvent(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l.LayerEvent(1, "verified")

	output := buf.String()
	if !strings.Contains(output, "verified") {
		t.Errorf("Output should contain outcome: %s", output)
	}
}

func TestLogger_ErrorEvent(t *testing.T) {
	l, buf := newBufferLogger(ErrorLevel)

	l.ErrorEvent(errors.New("boom"), "https://example.com/error", "replay")

	output := buf.String()
	if !strings.Contains(output, "https://example.com/error") {
		t.Errorf("Output should contain URL: %s", output)
	}
	if !strings.Contains(output, "replay") {
		t.Errorf("Output should contain operation: %s", output)
	}
}

func TestLogger_SetLevel(t *testing.T) {
	l, buf := newBufferLogger(DebugLevel)

	l.Debug("should appear")
	l.SetLevel(ErrorLevel)
	l.Debug("should not appear")

	output := buf.String()
	if !strings.Contains(output, "should appear") {
		t.Error("First debug should appear")
	}
	if strings.Contains(output, "should not appear") {
		t.Error("Debug after SetLevel should be filtered")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if err != nil {
				t.Fatalf("ParseLevel() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGlobalLogger(t *testing.T) {
	l := Global()
	if l == nil {
		t.Fatal("Global() returned nil")
	}

	var buf bytes.Buffer
	SetGlobal(New(Config{
		Level:  InfoLevel,
		Pretty: false,
		Output: &buf,
	}))

	Infof("global %s", "test")

	output := buf.String()
	if !strings.Contains(output, "global test") {
		t.Errorf("Output should contain message: %s", output)
	}

	// Reset global logger
	SetGlobal(NewDefault())
}

func TestLogger_JSONOutput(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l.Info("json test")

	var data map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Errorf("Output is not valid JSON: %v", err)
	}

	if data["message"] != "json test" {
		t.Errorf("Message = %v, want 'json test'", data["message"])
	}
	if data["level"] != "info" {
		t.Errorf("Level = %v, want 'info'", data["level"])
	}
}

func TestLogger_ChainedContexts(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l = l.WithComponent("extractor").
		WithLayer(1).
		WithURL("https://example.com")

	l.Info("chained context")

	output := buf.String()
	if !strings.Contains(output, "extractor") {
		t.Errorf("Output should contain component: %s", output)
	}
	if !strings.Contains(output, "https://example.com") {
		t.Errorf("Output should contain URL: %s", output)
	}
}
