// Package config handles configuration loading, validation, and
// normalization for the RelayBridge relay client.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5820

	// DefaultLanguage is the fallback when the configured language
	// code is not supported.
	DefaultLanguage = "en"
)

// SupportedLanguages is the closed set of language codes the relay can
// format game notices in.
var SupportedLanguages = []string{"en", "zh-cn"}

// Config is the root configuration structure for RelayBridge.
type Config struct {
	path string

	MultiChat       MultiChatConfig `json:"multichat"`
	ApplicationData ApplicationData `json:"application_data"`
}

// MultiChatConfig carries the relay client settings. Running
// components copy it at startup; later edits only affect the file.
type MultiChatConfig struct {
	// URL of the relay hub. Normalized to exactly one trailing slash.
	URL string `json:"multichat-url"`

	// Key is the shared secret presented during registration.
	Key string `json:"multichat-key"`

	// ServerName is optional; it is combined with the "MC-" prefix to
	// form the client display name announced to the hub.
	ServerName string `json:"server-name"`

	// Listen forwards local player chat to the hub.
	Listen bool `json:"listen"`

	// Post forwards hub messages into local chat.
	Post bool `json:"post"`

	// IgnorePrefix lists chat prefixes that are never forwarded.
	IgnorePrefix []string `json:"ignore-prefix"`

	// Lang selects the notice language; one of SupportedLanguages.
	Lang string `json:"lang"`
}

// ClientName derives the display name sent in the register frame.
func (m MultiChatConfig) ClientName() string {
	if m.ServerName != "" {
		return "MC-" + m.ServerName
	}
	return "MC"
}

// ApplicationData contains the peripheral component configuration.
type ApplicationData struct {
	API        APIConfig        `json:"api"`
	MQTT       MQTTConfig       `json:"mqtt"`
	History    HistoryConfig    `json:"history"`
	GameServer GameServerConfig `json:"game_server"`
	Logging    LoggingConfig    `json:"logging"`
}

// APIConfig holds REST API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	ClientID  string `json:"client_id"`
}

// HistoryConfig holds message history store settings.
type HistoryConfig struct {
	Enabled       bool   `json:"enabled"`
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days"`
}

// GameServerConfig holds the local game-server adapter settings.
type GameServerConfig struct {
	// LogFile is the game server console log tailed for events.
	LogFile string `json:"log_file"`
	// ConsolePipe receives commands for the game server console.
	ConsolePipe string `json:"console_pipe"`
	// ConsoleName is the actor name the server console chats under.
	ConsoleName string `json:"console_name"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MultiChat: MultiChatConfig{
			Listen:       true,
			Post:         true,
			IgnorePrefix: []string{},
			Lang:         DefaultLanguage,
		},
		ApplicationData: ApplicationData{
			API: APIConfig{
				Enabled: true,
				Port:    DefaultAPIPort,
			},
			MQTT: MQTTConfig{
				Enabled: false,
				Port:    8883,
				UseTLS:  true,
			},
			History: HistoryConfig{
				Enabled:       true,
				Path:          "config/history.db",
				RetentionDays: 30,
			},
			GameServer: GameServerConfig{
				LogFile:     "logs/latest.log",
				ConsolePipe: "server.fifo",
				ConsoleName: "Server",
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxBackups: 5,
			},
		},
	}
}

// Load reads configuration from a JSON file, overlays it on the
// defaults, and normalizes the relay settings.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	cfg.Normalize()
	log.Info().Str("path", configPath).Msg("configuration loaded")

	return cfg, nil
}

// Normalize fixes up values that tolerate sloppy input: the hub URL is
// normalized to exactly one trailing slash, and an unsupported
// language falls back to the default with a warning. Falling back
// here means message formatting never has to re-check the code.
func (c *Config) Normalize() {
	if c.MultiChat.URL != "" {
		c.MultiChat.URL = strings.TrimRight(c.MultiChat.URL, "/") + "/"
	}

	if c.MultiChat.Lang == "" {
		c.MultiChat.Lang = DefaultLanguage
		return
	}
	if !IsSupportedLanguage(c.MultiChat.Lang) {
		log.Warn().Str("lang", c.MultiChat.Lang).Msg("not supported language, falling back to en")
		c.MultiChat.Lang = DefaultLanguage
	}
}

// IsSupportedLanguage reports whether lang is in the supported set.
func IsSupportedLanguage(lang string) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

// UpdateMultiChatField updates a single relay client setting by its
// JSON key. Running components hold their own copy of the settings,
// so the change takes effect on the next startup.
func (c *Config) UpdateMultiChatField(key string, value interface{}) error {
	data, _ := json.Marshal(c.MultiChat)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	if _, ok := m[key]; !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	m[key] = value

	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, &c.MultiChat); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}

	c.Normalize()
	return nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
