package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	for _, key := range []string{"OPENROUTER_API_KEY", "HF_API_KEY", "DOCQA_API_KEY"} {
		if got := SanitiseKey(key, "sk-abc123"); got != "set" {
			t.Errorf("%s: expected 'set', got %q", key, got)
		}
		if got := SanitiseKey(key, ""); got != "unset" {
			t.Errorf("%s: expected 'unset', got %q", key, got)
		}
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("MODEL_PROVIDER", "openrouter"); got != "openrouter" {
		t.Errorf("expected 'openrouter', got %q", got)
	}
	if got := SanitiseKey("MODEL_PROVIDER", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestPresence(t *testing.T) {
	t.Parallel()
	if got := presence("something"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := presence(""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.docqa/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.docqa/config.yaml" {
			t.Errorf("expected '~/.docqa/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-or-secret")
	t.Setenv("HF_API_KEY", "hf_secret")
	t.Setenv("MODEL_PROVIDER", "openrouter")
	t.Setenv("DOCQA_API_KEY", "")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	LogCommandStart(context.Background(), log, "ask", "")

	if bytes.Contains(buf.Bytes(), []byte("sk-or-secret")) || bytes.Contains(buf.Bytes(), []byte("hf_secret")) {
		t.Fatalf("secret value leaked into audit log: %s", buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode audit line: %v", err)
	}
	want := map[string]string{
		"command":            "ask",
		"config_file":        "none",
		"MODEL_PROVIDER":     "openrouter",
		"OPENROUTER_API_KEY": "set",
		"HF_API_KEY":         "set",
		"DOCQA_API_KEY":      "unset",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s: got %v, want %q", k, entry[k], v)
		}
	}
}
