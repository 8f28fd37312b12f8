package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-repository config file.
const ConfigFileName = ".devtrail.yml"

// Config holds all devtrail settings.
type Config struct {
	Enabled       bool             `yaml:"enabled"`
	Language      string           `yaml:"language"`
	CommitTrailer bool             `yaml:"commitTrailer"`
	DataDir       string           `yaml:"dataDir,omitempty"`
	LogLevel      string           `yaml:"logLevel,omitempty"`
	Connectors    ConnectorsConfig `yaml:"connectors"`
	Privacy       PrivacyConfig    `yaml:"privacy"`
	Collection    CollectionConfig `yaml:"collection"`
	Retry         RetryConfig      `yaml:"retry"`

	masks []*regexp.Regexp
}

// ConnectorsConfig toggles and locates each collector.
type ConnectorsConfig struct {
	Claude ConnectorConfig `yaml:"claude"`
	Cursor ConnectorConfig `yaml:"cursor"`
	CLI    CLIConfig       `yaml:"cli"`
	Git    ConnectorConfig `yaml:"git"`
}

// ConnectorConfig is the common shape of a connector section. Path overrides
// the detected data location.
type ConnectorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// UnmarshalYAML accepts both `claude: true` and `claude: {enabled: true}`.
func (c *ConnectorConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&c.Enabled)
	}
	type plain ConnectorConfig
	return node.Decode((*plain)(c))
}

// CLIConfig configures shell command capture.
type CLIConfig struct {
	Mode string `yaml:"mode"` // "zsh-preexec", "bash-prompt" or "off"
	Path string `yaml:"path,omitempty"`
}

// Enabled reports whether CLI capture is on.
func (c CLIConfig) Enabled() bool {
	return c.Mode != "" && c.Mode != "off"
}

// PrivacyConfig controls redaction of collected text.
type PrivacyConfig struct {
	MaskSecrets bool     `yaml:"maskSecrets"`
	Masks       []string `yaml:"masks,omitempty"`
}

// CollectionConfig tunes the collector manager.
type CollectionConfig struct {
	Workers        int           `yaml:"workers"`
	Lookback       time.Duration `yaml:"lookback"`
	AnchorTTL      time.Duration `yaml:"anchorTTL"`
	RepoTTL        time.Duration `yaml:"repoTTL"`
	MaxSessions    int           `yaml:"maxSessions"`
	MaxDiffCommits int           `yaml:"maxDiffCommits"`
}

// RetryConfig bounds external process calls and store opens.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultMasks redact common credential shapes.
var DefaultMasks = []string{
	`(?i)["']?[a-z0-9_-]*api[_-]?key["']?\s*[:=]\s*["']?[a-z0-9_\-]{8,}["']?`,
	`(?i)bearer\s+[a-z0-9._\-]{16,}`,
	`\bsk-[A-Za-z0-9_\-]{16,}\b`,
	`\bgh[pousr]_[A-Za-z0-9]{20,}\b`,
	`\bAKIA[0-9A-Z]{16}\b`,
	`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`,
	`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		Language:      "en",
		CommitTrailer: true,
		LogLevel:      "info",
		Connectors: ConnectorsConfig{
			Claude: ConnectorConfig{Enabled: true},
			Cursor: ConnectorConfig{Enabled: true},
			CLI:    CLIConfig{Mode: "zsh-preexec"},
			Git:    ConnectorConfig{Enabled: true},
		},
		Privacy: PrivacyConfig{
			MaskSecrets: true,
			Masks:       append([]string(nil), DefaultMasks...),
		},
		Collection: CollectionConfig{
			Workers:        4,
			Lookback:       24 * time.Hour,
			AnchorTTL:      60 * time.Second,
			RepoTTL:        10 * time.Minute,
			MaxSessions:    10,
			MaxDiffCommits: 5,
		},
		Retry: RetryConfig{
			Attempts: 2,
			Backoff:  200 * time.Millisecond,
			Timeout:  10 * time.Second,
		},
	}
}

// LoadConfig reads <repoRoot>/.devtrail.yml over the defaults and applies
// environment overrides. A missing file is not an error.
func LoadConfig(repoRoot string) (*Config, error) {
	cfg := DefaultConfig()

	if repoRoot != "" {
		path := filepath.Join(repoRoot, ConfigFileName)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, &ParseError{Source: "config", Key: path, Err: err}
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.compileMasks(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if os.Getenv("DEVTRAIL_ENABLED") == "false" {
		c.Enabled = false
	}
	if lang := os.Getenv("DEVTRAIL_LANG"); lang == "en" || lang == "ko" {
		c.Language = lang
	}
	if os.Getenv("DEVTRAIL_TRAILER") == "false" {
		c.CommitTrailer = false
	}
	c.DataDir = getenv("DEVTRAIL_HOME", c.DataDir)
	c.LogLevel = getenv("DEVTRAIL_LOG_LEVEL", c.LogLevel)
	if os.Getenv("DEVTRAIL_DEBUG") == "1" || os.Getenv("DEVTRAIL_DEBUG") == "true" {
		c.LogLevel = "debug"
	}
	c.Collection.Workers = getenvInt("DEVTRAIL_WORKERS", c.Collection.Workers)
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.Collection.Workers <= 0 {
		c.Collection.Workers = d.Collection.Workers
	}
	if c.Collection.Lookback <= 0 {
		c.Collection.Lookback = d.Collection.Lookback
	}
	if c.Collection.AnchorTTL <= 0 {
		c.Collection.AnchorTTL = d.Collection.AnchorTTL
	}
	if c.Collection.RepoTTL <= 0 {
		c.Collection.RepoTTL = d.Collection.RepoTTL
	}
	if c.Collection.MaxSessions <= 0 {
		c.Collection.MaxSessions = d.Collection.MaxSessions
	}
	if c.Collection.MaxDiffCommits < 0 {
		c.Collection.MaxDiffCommits = 0
	}
	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = 1
	}
	if c.Retry.Timeout <= 0 {
		c.Retry.Timeout = d.Retry.Timeout
	}
}

func (c *Config) compileMasks() error {
	c.masks = c.masks[:0]
	for _, pattern := range c.Privacy.Masks {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return &ParseError{Source: "config", Key: "privacy.masks", Err: err}
		}
		c.masks = append(c.masks, re)
	}
	return nil
}

// RedactText applies the privacy masks to text.
func (c *Config) RedactText(text string) string {
	if c == nil || !c.Privacy.MaskSecrets {
		return text
	}
	if c.masks == nil && len(c.Privacy.Masks) > 0 {
		if err := c.compileMasks(); err != nil {
			LogWarn("Invalid privacy mask: %v", err)
			return text
		}
	}
	for _, re := range c.masks {
		text = re.ReplaceAllString(text, "[REDACTED]")
	}
	return text
}

// ResolveDataDir returns the data directory, defaulting to ~/.devtrail.
func (c *Config) ResolveDataDir() (string, error) {
	if c != nil && c.DataDir != "" {
		return c.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".devtrail"), nil
}

// RetryPolicy builds the retry policy described by the config.
func (c *Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: c.Retry.Attempts,
		Backoff:  c.Retry.Backoff,
		Timeout:  c.Retry.Timeout,
	}
}

const defaultConfigContent = `# devtrail configuration

enabled: true
language: en            # en, ko
commitTrailer: true     # append a context trailer to commit messages

connectors:
  claude: true          # Claude Code transcripts
  cursor: true          # Cursor editor conversations
  cli:
    mode: "zsh-preexec" # shell command capture ("off" to disable)
  git: true

privacy:
  maskSecrets: true

collection:
  workers: 4
  lookback: 24h
  maxSessions: 10

# Environment overrides:
# DEVTRAIL_ENABLED=false
# DEVTRAIL_LANG=en
# DEVTRAIL_TRAILER=false
# DEVTRAIL_HOME=/path/to/data
`

// WriteDefaultConfig writes a commented default config into repoRoot.
// An existing file is left untouched.
func WriteDefaultConfig(repoRoot string) (string, bool, error) {
	path := filepath.Join(repoRoot, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}
	if err := os.WriteFile(path, []byte(defaultConfigContent), 0644); err != nil {
		return path, false, fmt.Errorf("failed to write config: %w", err)
	}
	return path, true, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
