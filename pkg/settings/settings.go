// Package settings resolves named configuration values from a layered set
// of providers.
//
// Providers are queried in priority order and the first non-empty value
// wins. The standard layering puts the operator-managed secrets file ahead
// of process environment variables, so a deployed secrets file overrides
// whatever happens to be in the environment. Absence is always signaled by
// an empty string; resolution never fails.
package settings

import (
	"os"

	"github.com/spf13/viper"
)

// Setting names recognized by the bridge.
const (
	RedcapAPIURL   = "REDCAP_API_URL"
	RedcapAPIToken = "REDCAP_API_TOKEN"

	SnowflakeAccount   = "SNOWFLAKE_ACCOUNT"
	SnowflakeUser      = "SNOWFLAKE_USER"
	SnowflakePassword  = "SNOWFLAKE_PASSWORD"
	SnowflakeWarehouse = "SNOWFLAKE_WAREHOUSE"
	SnowflakeDatabase  = "SNOWFLAKE_DATABASE"
	SnowflakeSchema    = "SNOWFLAKE_SCHEMA"
	SnowflakeTable     = "SNOWFLAKE_TABLE"
)

// DefaultTable is used when SNOWFLAKE_TABLE is unset.
const DefaultTable = "REDCAP_EXPORT"

// Provider resolves a single named setting. Implementations are pure reads:
// no caching, no side effects, empty string when absent.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string
	// Lookup returns the value for the setting, or "" when absent.
	Lookup(name string) string
}

// EnvProvider resolves settings from process environment variables.
type EnvProvider struct{}

// Name implements Provider.
func (EnvProvider) Name() string { return "env" }

// Lookup implements Provider.
func (EnvProvider) Lookup(name string) string { return os.Getenv(name) }

// FileProvider resolves settings from an operator-managed secrets file
// (YAML, TOML, or JSON — whatever viper recognizes from the extension).
// A missing file yields an empty provider rather than an error, matching
// the "absence is empty string" contract.
type FileProvider struct {
	v    *viper.Viper
	path string
}

// NewFileProvider reads the secrets file at path. The returned provider is
// usable even when the file does not exist.
func NewFileProvider(path string) *FileProvider {
	v := viper.New()
	v.SetConfigFile(path)
	_ = v.ReadInConfig() // absent or unreadable file means no values
	return &FileProvider{v: v, path: path}
}

// Name implements Provider.
func (p *FileProvider) Name() string { return "secrets-file" }

// Lookup implements Provider.
func (p *FileProvider) Lookup(name string) string {
	return p.v.GetString(name)
}

// StaticProvider resolves settings from a fixed map. Used in tests and for
// CLI overrides.
type StaticProvider struct {
	Label  string
	Values map[string]string
}

// Name implements Provider.
func (p *StaticProvider) Name() string {
	if p.Label == "" {
		return "static"
	}
	return p.Label
}

// Lookup implements Provider.
func (p *StaticProvider) Lookup(name string) string { return p.Values[name] }

// Resolver queries an ordered list of providers.
type Resolver struct {
	providers []Provider
}

// NewResolver builds a resolver over the given providers, highest priority
// first.
func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{providers: providers}
}

// Default returns the standard layering: secrets file first (when a path is
// given), environment second.
func Default(secretsPath string) *Resolver {
	if secretsPath == "" {
		return NewResolver(EnvProvider{})
	}
	return NewResolver(NewFileProvider(secretsPath), EnvProvider{})
}

// Get returns the first non-empty value for the setting across providers,
// or "" when no provider has it.
func (r *Resolver) Get(name string) string {
	for _, p := range r.providers {
		if v := p.Lookup(name); v != "" {
			return v
		}
	}
	return ""
}

// GetDefault returns Get(name), or fallback when the setting is unset.
func (r *Resolver) GetDefault(name, fallback string) string {
	if v := r.Get(name); v != "" {
		return v
	}
	return fallback
}

// Missing returns, in input order, every required name that resolves empty.
func (r *Resolver) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		if r.Get(name) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
