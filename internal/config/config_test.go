package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeURLTrailingSlash(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ws://hub.example.com", "ws://hub.example.com/"},
		{"ws://hub.example.com/", "ws://hub.example.com/"},
		{"ws://hub.example.com///", "ws://hub.example.com/"},
		{"wss://hub.example.com/relay", "wss://hub.example.com/relay/"},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.MultiChat.URL = tt.in
		cfg.Normalize()
		if cfg.MultiChat.URL != tt.want {
			t.Errorf("Normalize(%q) URL = %q, want %q", tt.in, cfg.MultiChat.URL, tt.want)
		}
	}
}

func TestNormalizeLanguageFallback(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"en", "en"},
		{"zh-cn", "zh-cn"},
		{"", "en"},
		{"fr", "en"},
		{"EN", "en"},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.MultiChat.Lang = tt.in
		cfg.Normalize()
		if cfg.MultiChat.Lang != tt.want {
			t.Errorf("Normalize lang %q = %q, want %q", tt.in, cfg.MultiChat.Lang, tt.want)
		}
	}
}

func TestClientName(t *testing.T) {
	m := MultiChatConfig{ServerName: "survival"}
	if got := m.ClientName(); got != "MC-survival" {
		t.Fatalf("ClientName() = %q, want %q", got, "MC-survival")
	}

	m.ServerName = ""
	if got := m.ClientName(); got != "MC" {
		t.Fatalf("ClientName() = %q, want %q", got, "MC")
	}
}

func TestValidateRequiredFields(t *testing.T) {
	cfg := DefaultConfig()
	result := Validate(cfg)
	if result.IsValid() {
		t.Fatal("expected validation errors for empty URL and key")
	}

	fields := make(map[string]bool)
	for _, e := range result.Errors {
		fields[e.Field] = true
	}
	if !fields["multichat.multichat-url"] {
		t.Error("missing error for multichat-url")
	}
	if !fields["multichat.multichat-key"] {
		t.Error("missing error for multichat-key")
	}

	cfg.MultiChat.URL = "ws://hub.example.com/"
	cfg.MultiChat.Key = "secret"
	if result := Validate(cfg); !result.IsValid() {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
}

func TestValidateMQTTRequiresBroker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MultiChat.URL = "ws://hub.example.com/"
	cfg.MultiChat.Key = "secret"
	cfg.ApplicationData.MQTT.Enabled = true

	result := Validate(cfg)
	if result.IsValid() {
		t.Fatal("expected error for enabled MQTT without broker URL")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	raw := `{
		"multichat": {
			"multichat-url": "ws://hub.example.com",
			"multichat-key": "secret",
			"server-name": "survival",
			"listen": true,
			"post": false,
			"ignore-prefix": ["!", "/"],
			"lang": "zh-cn"
		}
	}`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.MultiChat.URL != "ws://hub.example.com/" {
		t.Errorf("URL = %q, want normalized trailing slash", cfg.MultiChat.URL)
	}
	if cfg.MultiChat.Post {
		t.Error("Post = true, want false from file")
	}
	if len(cfg.MultiChat.IgnorePrefix) != 2 {
		t.Errorf("IgnorePrefix = %v, want 2 entries", cfg.MultiChat.IgnorePrefix)
	}
	if cfg.MultiChat.Lang != "zh-cn" {
		t.Errorf("Lang = %q, want zh-cn", cfg.MultiChat.Lang)
	}
	// Untouched sections keep defaults.
	if cfg.ApplicationData.API.Port != DefaultAPIPort {
		t.Errorf("API port = %d, want default %d", cfg.ApplicationData.API.Port, DefaultAPIPort)
	}
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "cfg"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(cfg.Path()); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
}
