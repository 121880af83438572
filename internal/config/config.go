// Package config loads the relay configuration from YAML with environment
// overrides.
package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Config is the root configuration for warelay.
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp,omitempty"`
	Assistant AssistantConfig `yaml:"assistant,omitempty"`
	Session   SessionConfig   `yaml:"session,omitempty"`
	Tickets   TicketsConfig   `yaml:"tickets,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// ServerConfig controls the webhook HTTP server.
type ServerConfig struct {
	Port int    `yaml:"port,omitempty"`
	Bind string `yaml:"bind,omitempty"`
}

// WhatsAppConfig holds Cloud API credentials and endpoints.
type WhatsAppConfig struct {
	VerifyToken   string `yaml:"verifyToken,omitempty"`
	AccessToken   string `yaml:"accessToken,omitempty"`
	AppSecret     string `yaml:"appSecret,omitempty"`
	PhoneNumberID string `yaml:"phoneNumberId,omitempty"`
	GraphVersion  string `yaml:"graphVersion,omitempty"`
	BaseURL       string `yaml:"baseUrl,omitempty"`
}

// AssistantConfig holds the OpenAI Assistants credentials.
type AssistantConfig struct {
	APIKey         string `yaml:"apiKey,omitempty"`
	AssistantID    string `yaml:"assistantId,omitempty"`
	BaseURL        string `yaml:"baseUrl,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
	ThreadsPath    string `yaml:"threadsPath,omitempty"`
}

// SessionConfig controls session lifetime and snapshotting.
type SessionConfig struct {
	TimeoutSeconds  int    `yaml:"timeoutSeconds,omitempty"`
	WarningSeconds  int    `yaml:"warningSeconds,omitempty"`
	SweepSeconds    int    `yaml:"sweepSeconds,omitempty"`
	SnapshotSeconds int    `yaml:"snapshotSeconds,omitempty"`
	SnapshotPath    string `yaml:"snapshotPath,omitempty"`
	HistoryLimit    int    `yaml:"historyLimit,omitempty"`
}

// TicketsConfig points at the support-ticket webhook.
type TicketsConfig struct {
	WebhookURL string `yaml:"webhookUrl,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 3000,
			Bind: "0.0.0.0",
		},
		WhatsApp: WhatsAppConfig{
			GraphVersion: "v18.0",
			BaseURL:      "https://graph.facebook.com",
		},
		Assistant: AssistantConfig{
			BaseURL:        "https://api.openai.com/v1",
			TimeoutSeconds: 60,
			ThreadsPath:    "threads.json",
		},
		Session: SessionConfig{
			TimeoutSeconds:  600,
			WarningSeconds:  300,
			SweepSeconds:    30,
			SnapshotSeconds: 300,
			SnapshotPath:    "sessions.json",
			HistoryLimit:    10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
