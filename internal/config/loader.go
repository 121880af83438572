package config

import (
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so tokens and secrets can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.WhatsApp.VerifyToken = expandEnvVars(cfg.WhatsApp.VerifyToken)
	cfg.WhatsApp.AccessToken = expandEnvVars(cfg.WhatsApp.AccessToken)
	cfg.WhatsApp.AppSecret = expandEnvVars(cfg.WhatsApp.AppSecret)
	cfg.Assistant.APIKey = expandEnvVars(cfg.Assistant.APIKey)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = "0.0.0.0"
	}
	if cfg.WhatsApp.GraphVersion == "" {
		cfg.WhatsApp.GraphVersion = "v18.0"
	}
	if cfg.WhatsApp.BaseURL == "" {
		cfg.WhatsApp.BaseURL = "https://graph.facebook.com"
	}
	if cfg.Assistant.BaseURL == "" {
		cfg.Assistant.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Assistant.TimeoutSeconds == 0 {
		cfg.Assistant.TimeoutSeconds = 60
	}
	if cfg.Assistant.ThreadsPath == "" {
		cfg.Assistant.ThreadsPath = "threads.json"
	}
	if cfg.Session.TimeoutSeconds == 0 {
		cfg.Session.TimeoutSeconds = 600
	}
	if cfg.Session.WarningSeconds == 0 {
		cfg.Session.WarningSeconds = 300
	}
	if cfg.Session.SweepSeconds == 0 {
		cfg.Session.SweepSeconds = 30
	}
	if cfg.Session.SnapshotSeconds == 0 {
		cfg.Session.SnapshotSeconds = 300
	}
	if cfg.Session.SnapshotPath == "" {
		cfg.Session.SnapshotPath = "sessions.json"
	}
	if cfg.Session.HistoryLimit == 0 {
		cfg.Session.HistoryLimit = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides reads WARELAY_* environment variables and overrides
// config values. Credentials also honor the legacy unprefixed names the
// deployment already exports.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WARELAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WARELAY_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("WARELAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VERIFY_TOKEN"); v != "" {
		cfg.WhatsApp.VerifyToken = v
	}
	if v := os.Getenv("ACCESS_TOKEN"); v != "" {
		cfg.WhatsApp.AccessToken = v
	}
	if v := os.Getenv("WHATSAPP_APP_SECRET"); v != "" {
		cfg.WhatsApp.AppSecret = v
	}
	if v := os.Getenv("PHONE_NUMBER_ID"); v != "" {
		cfg.WhatsApp.PhoneNumberID = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Assistant.APIKey = v
	}
	if v := os.Getenv("ASSISTANT_ID"); v != "" {
		cfg.Assistant.AssistantID = v
	}
	if v := os.Getenv("ODOO_WEBHOOK_URL_TICKETS"); v != "" {
		cfg.Tickets.WebhookURL = v
	}
	if v := os.Getenv("SESSION_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("SESSION_WARNING_TIME"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.WarningSeconds = n
		}
	}
	if v := os.Getenv("SESSIONS_FILE_PATH"); v != "" {
		cfg.Session.SnapshotPath = v
	}
}
