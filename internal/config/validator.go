package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks the configuration. A missing required relay field is
// an error that disables the relay component; it must not bring down
// anything else running in the process.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateMultiChat(&cfg.MultiChat, result)
	validateApplicationData(&cfg.ApplicationData, result)

	return result
}

func validateMultiChat(m *MultiChatConfig, result *ValidationResult) {
	if strings.TrimSpace(m.URL) == "" {
		result.AddError("multichat.multichat-url", "relay hub URL is required")
	} else if !strings.HasPrefix(m.URL, "ws://") && !strings.HasPrefix(m.URL, "wss://") {
		result.AddWarning("multichat.multichat-url",
			fmt.Sprintf("URL %q does not look like a websocket URL", m.URL))
	}

	if strings.TrimSpace(m.Key) == "" {
		result.AddError("multichat.multichat-key", "relay secret key is required")
	}

	if m.Lang != "" && !IsSupportedLanguage(m.Lang) {
		result.AddWarning("multichat.lang",
			fmt.Sprintf("not supported language: %s", m.Lang))
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	if data.API.Enabled {
		validatePort(data.API.Port, "application_data.api.port", result)
	}

	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when MQTT is enabled")
		}
		validatePort(data.MQTT.Port, "application_data.mqtt.port", result)
	}

	if data.History.Enabled {
		if strings.TrimSpace(data.History.Path) == "" {
			result.AddError("application_data.history.path", "history database path is required when history is enabled")
		}
		if data.History.RetentionDays < 1 {
			result.AddWarning("application_data.history.retention_days", "retention below 1 day, history will be purged aggressively")
		}
	}

	if strings.TrimSpace(data.GameServer.LogFile) == "" {
		result.AddError("application_data.game_server.log_file", "game server log file is required")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port %d", port))
	}
}
