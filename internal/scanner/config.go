package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const configFileName = ".vibescan.yaml"

// ScannerConfig represents the run configuration
type ScannerConfig struct {
	SecurityRules     string   `yaml:"security_rules,omitempty"`
	StyleRules        string   `yaml:"style_rules,omitempty"`
	StrictRules       bool     `yaml:"strict_rules,omitempty"`
	Exclude           []string `yaml:"exclude,omitempty"`
	Threads           int      `yaml:"threads,omitempty"`
	MaxFileSize       int64    `yaml:"max_file_size,omitempty"`
	NoBaseline        bool     `yaml:"no_baseline,omitempty"`
	WebhookURL        string   `yaml:"webhook_url,omitempty"`
	WebhookSecret     string   `yaml:"webhook_secret,omitempty"`
	HistoryDB         string   `yaml:"history_db,omitempty"`
	FailUnderSecurity int      `yaml:"fail_under_security,omitempty"`
	FailUnderStyle    int      `yaml:"fail_under_style,omitempty"`
	LogLevel          string   `yaml:"log_level,omitempty"`
	LogFormat         string   `yaml:"log_format,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists
func DefaultConfig() *ScannerConfig {
	return &ScannerConfig{
		Threads:   4,
		LogLevel:  "warn",
		LogFormat: "console",
	}
}

// DefaultConfigPath returns the default path to the configuration file
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return configFileName
	}
	return filepath.Join(home, configFileName)
}

// LoadConfig loads the configuration from the given path. A missing
// file yields the defaults.
func LoadConfig(path string) (*ScannerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.Threads <= 0 {
		config.Threads = DefaultConfig().Threads
	}
	return config, nil
}

// SaveConfig saves the configuration to the given path
func SaveConfig(config *ScannerConfig, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// MergeConfig layers environment variables and then explicitly set flags
// over the config file.
func MergeConfig(config *ScannerConfig, flags map[string]interface{}) *ScannerConfig {
	merged := *config
	merged.Exclude = append([]string(nil), config.Exclude...)

	if url := os.Getenv("VIBESCAN_WEBHOOK_URL"); url != "" {
		merged.WebhookURL = url
	}
	if secret := os.Getenv("VIBESCAN_WEBHOOK_SECRET"); secret != "" {
		merged.WebhookSecret = secret
	}
	if level := os.Getenv("VIBESCAN_LOG_LEVEL"); level != "" {
		merged.LogLevel = level
	}
	if db := os.Getenv("VIBESCAN_HISTORY_DB"); db != "" {
		merged.HistoryDB = db
	}
	if v := os.Getenv("VIBESCAN_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			merged.Threads = n
		}
	}

	for k, v := range flags {
		switch k {
		case "rules-sec":
			if s, ok := v.(string); ok && s != "" {
				merged.SecurityRules = s
			}
		case "rules-style":
			if s, ok := v.(string); ok && s != "" {
				merged.StyleRules = s
			}
		case "strict-rules":
			if b, ok := v.(bool); ok {
				merged.StrictRules = b
			}
		case "exclude":
			if s, ok := v.([]string); ok {
				merged.Exclude = append(merged.Exclude, s...)
			}
		case "threads":
			if n, ok := v.(int); ok && n > 0 {
				merged.Threads = n
			}
		case "max-file-size":
			if n, ok := v.(int64); ok && n >= 0 {
				merged.MaxFileSize = n
			}
		case "no-baseline":
			if b, ok := v.(bool); ok {
				merged.NoBaseline = b
			}
		case "webhook-url":
			if s, ok := v.(string); ok && s != "" {
				merged.WebhookURL = s
			}
		case "webhook-secret":
			if s, ok := v.(string); ok && s != "" {
				merged.WebhookSecret = s
			}
		case "history-db":
			if s, ok := v.(string); ok && s != "" {
				merged.HistoryDB = s
			}
		case "fail-under-security":
			if n, ok := v.(int); ok {
				merged.FailUnderSecurity = n
			}
		case "fail-under-style":
			if n, ok := v.(int); ok {
				merged.FailUnderStyle = n
			}
		case "log-level":
			if s, ok := v.(string); ok && s != "" {
				merged.LogLevel = s
			}
		case "log-format":
			if s, ok := v.(string); ok && s != "" {
				merged.LogFormat = s
			}
		}
	}

	return &merged
}
