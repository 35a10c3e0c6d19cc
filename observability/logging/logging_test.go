package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestSetupRenamesKeys(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := setup(&buf, "bankd", "test", slog.LevelInfo)
	logger.Info("deposit applied", "account", "bank1xyz")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env", "account"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("missing key %q in %v", key, line)
		}
	}
	if line["severity"] != "INFO" || line["service"] != "bankd" {
		t.Fatalf("unexpected line: %v", line)
	}
}

func TestSetupHonoursLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := setup(&buf, "bankd", "", ParseLevel("warn"))
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %s", buf.String())
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("passphrase", "hunter2"); got.Value.String() != RedactedValue {
		t.Fatalf("expected redaction, got %v", got)
	}
	if got := MaskField("account", "bank1xyz"); got.Value.String() != "bank1xyz" {
		t.Fatalf("allowlisted key should pass through, got %v", got)
	}
	if got := MaskField("signature", ""); got.Value.String() != "" {
		t.Fatalf("empty value should stay empty, got %v", got)
	}
}
