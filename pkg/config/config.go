// Package config provides application-level configuration loading for
// snowbridge. Pipeline credentials are not configured here — those go
// through the settings resolver — this covers the hosting process itself:
// where the UI listens, how it logs, and where the secrets file lives.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig configures the snowbridge process.
type AppConfig struct {
	// Listen is the address the UI server binds to.
	Listen string `yaml:"listen" json:"listen"`
	// SecretsFile is the path to the operator-managed secrets file.
	// Empty means environment variables only.
	SecretsFile string `yaml:"secrets_file" json:"secrets_file"`
	// LogLevel sets logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level" json:"log_level"`
	// Development switches the logger to console encoding.
	Development bool `yaml:"development" json:"development"`
}

// NewAppConfig returns an AppConfig with defaults.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Listen:   ":8080",
		LogLevel: "info",
	}
}

// Validate checks the configuration for correctness.
func (c *AppConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// Load loads a configuration from a YAML file, substituting ${VAR}
// references with environment variable values first.
func Load(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path is operator-supplied
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
