package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Embedding providers.
const (
	ProviderHash   = "hash"
	ProviderOllama = "ollama"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Identity IdentityConfig    `yaml:"identity"`
	Relay    RelayConfig       `yaml:"relay"`
	Sync     SyncConfig        `yaml:"sync"`
	AI       AIConfig          `yaml:"ai"`
	Matcher  MatcherConfig     `yaml:"matcher"`
	Vault    VaultConfig       `yaml:"vault"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.SQLite, &c.Auth, &c.Relay, &c.Sync, &c.AI, &c.Matcher, &c.Vault,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// IdentityConfig holds the user's relay identity. An empty public key means
// the user is signed out and sync passes fail as not authenticated.
type IdentityConfig struct {
	PublicKey string `yaml:"public_key"`
}

// RelayConfig lists the relays notes are published to and fetched from.
type RelayConfig struct {
	URLs    []string      `yaml:"urls"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the relay configuration.
func (c *RelayConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URLs, validation.Each(validation.Required, is.URL)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

// SyncConfig controls the background sync scheduler.
type SyncConfig struct {
	// Interval between periodic passes; zero disables periodic passes.
	Interval      time.Duration `yaml:"interval"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	FullOnStart   bool          `yaml:"full_on_start"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.Min(time.Duration(0))),
		validation.Field(&c.ProbeInterval, validation.Required, validation.Min(time.Second)),
	)
}

// AIConfig controls embeddings and embedding matches.
type AIConfig struct {
	Enabled     bool         `yaml:"enabled"`
	Sensitivity float64      `yaml:"sensitivity"`
	Provider    string       `yaml:"provider"`
	Dimensions  int          `yaml:"dimensions"`
	CacheSize   int          `yaml:"cache_size"`
	Ollama      OllamaConfig `yaml:"ollama"`
}

// OllamaConfig points at an Ollama server.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// Validate validates the AI configuration.
func (c *AIConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Sensitivity, validation.Required, validation.Min(0.01), validation.Max(1.0)),
		validation.Field(&c.Provider, validation.Required, validation.In(ProviderHash, ProviderOllama)),
		validation.Field(&c.Dimensions, validation.Required, validation.Min(1)),
		validation.Field(&c.CacheSize, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.Enabled && c.Provider == ProviderOllama && c.Ollama.Model == "" {
		return fmt.Errorf("ai: provider is %q but ollama.model is empty", ProviderOllama)
	}
	return nil
}

// MatcherConfig bounds the matches kept per note.
type MatcherConfig struct {
	MaxMatchesPerNote int `yaml:"max_matches_per_note"`
}

// Validate validates the matcher configuration.
func (c *MatcherConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxMatchesPerNote, validation.Required, validation.Min(1)),
	)
}

// VaultConfig holds the optional Markdown vault imported into the store.
type VaultConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	if c.Watch && c.Path == "" {
		return fmt.Errorf("vault: watch is enabled but path is empty")
	}
	return nil
}

// Enabled reports whether a vault is configured.
func (c *VaultConfig) Enabled() bool {
	return c.Path != ""
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./relaynote.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Relay: RelayConfig{
			Timeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			Interval:      5 * time.Minute,
			ProbeInterval: 30 * time.Second,
		},
		AI: AIConfig{
			Sensitivity: 0.7,
			Provider:    ProviderHash,
			Dimensions:  256,
			CacheSize:   512,
			Ollama: OllamaConfig{
				Model: "nomic-embed-text",
			},
		},
		Matcher: MatcherConfig{
			MaxMatchesPerNote: 20,
		},
	}
}
