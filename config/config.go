package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides let the pipeline run either embedded in the desktop
// app or as a standalone batch job without editing config files.
const (
	dataDirEnv      = "TENDER_DATA_DIR"
	keywordsEnv     = "TENDER_KEYWORDS"
	capabilitiesEnv = "TENDER_CAPABILITIES"
	cursorEnv       = "TENDER_CURSOR"
	outputEnv       = "TENDER_OUTPUT"
	chatEndpointEnv = "TENDER_CHAT_ENDPOINT"
	chatModelEnv    = "TENDER_CHAT_MODEL"
	metricsAddrEnv  = "TENDER_METRICS_ADDR"
	databaseDSNEnv  = "TENDER_DATABASE_DSN"
)

// Duration is a time.Duration that unmarshals from YAML strings like "3s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in the same form it parses.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std converts back to the standard type.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds scraper and pipeline configuration.
type Config struct {
	SearchURL            string `yaml:"searchUrl"`
	ExcludedOrganization string `yaml:"excludedOrganization"`
	UserAgent            string `yaml:"userAgent"`

	DataDir          string `yaml:"dataDir"`
	KeywordsFile     string `yaml:"keywordsFile"`
	CapabilitiesFile string `yaml:"capabilitiesFile"`
	CursorFile       string `yaml:"cursorFile"`
	OutputFile       string `yaml:"outputFile"`
	OutputFormat     string `yaml:"outputFormat"` // csv, json, or dual
	DatabaseDSN      string `yaml:"databaseDsn"`

	EnrichWorkers int      `yaml:"enrichWorkers"`
	Delay         Duration `yaml:"delay"`
	RandomDelay   Duration `yaml:"randomDelay"`
	Timeout       Duration `yaml:"timeout"`
	DedupeMaxSize int      `yaml:"dedupeMaxSize"`

	Chat ChatConfig `yaml:"chat"`

	MetricsAddr string `yaml:"metricsAddr"`
	Verbose     bool   `yaml:"verbose"`
}

// ChatConfig defines how to contact the relevance-classification endpoint.
type ChatConfig struct {
	Endpoint      string   `yaml:"endpoint"`
	Model         string   `yaml:"model"`
	APIKey        string   `yaml:"apiKey"`
	SystemPrompt  string   `yaml:"systemPrompt"`
	Temperature   float64  `yaml:"temperature"`
	Timeout       Duration `yaml:"timeout"`
	ProbeAttempts int      `yaml:"probeAttempts"`
	ProbeDelay    Duration `yaml:"probeDelay"`
	ProbeTimeout  Duration `yaml:"probeTimeout"`
}

// DefaultConfig returns conservative defaults for the CanadaBuys target and
// a local chat-completion endpoint.
func DefaultConfig() *Config {
	dataDir := "tender_data"
	return &Config{
		SearchURL:            "https://canadabuys.canada.ca/en/tender-opportunities",
		ExcludedOrganization: "NATO - North Atlantic Treaty Organization",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		DataDir:          dataDir,
		KeywordsFile:     filepath.Join(dataDir, "tender_keywords.csv"),
		CapabilitiesFile: filepath.Join(dataDir, "plant_capabilities.txt"),
		CursorFile:       filepath.Join(dataDir, "last_id.txt"),
		OutputFile:       filepath.Join(dataDir, "tender_data.csv"),
		OutputFormat:     "csv",
		EnrichWorkers:    5,
		Delay:            Duration(3 * time.Second),
		RandomDelay:      Duration(3 * time.Second),
		Timeout:          Duration(10 * time.Second),
		DedupeMaxSize:    10000,
		Chat: ChatConfig{
			Endpoint:      "http://localhost:1234/v1/chat/completions",
			Model:         "deepseek-r1-distill-qwen-7b",
			SystemPrompt:  "You analyze tenders for relevance.",
			Temperature:   0.3,
			Timeout:       Duration(60 * time.Second),
			ProbeAttempts: 3,
			ProbeDelay:    Duration(2 * time.Second),
			ProbeTimeout:  Duration(5 * time.Second),
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// given), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v, ok := EnvString(dataDirEnv); ok {
		c.DataDir = v
		c.KeywordsFile = filepath.Join(v, filepath.Base(c.KeywordsFile))
		c.CapabilitiesFile = filepath.Join(v, filepath.Base(c.CapabilitiesFile))
		c.CursorFile = filepath.Join(v, filepath.Base(c.CursorFile))
		c.OutputFile = filepath.Join(v, filepath.Base(c.OutputFile))
	}
	if v, ok := EnvString(keywordsEnv); ok {
		c.KeywordsFile = v
	}
	if v, ok := EnvString(capabilitiesEnv); ok {
		c.CapabilitiesFile = v
	}
	if v, ok := EnvString(cursorEnv); ok {
		c.CursorFile = v
	}
	if v, ok := EnvString(outputEnv); ok {
		c.OutputFile = v
	}
	if v, ok := EnvString(chatEndpointEnv); ok {
		c.Chat.Endpoint = v
	}
	if v, ok := EnvString(chatModelEnv); ok {
		c.Chat.Model = v
	}
	if v, ok := EnvString(metricsAddrEnv); ok {
		c.MetricsAddr = v
	}
	if v, ok := EnvString(databaseDSNEnv); ok {
		c.DatabaseDSN = v
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.SearchURL == "" {
		return fmt.Errorf("search URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.SearchURL)
	if err != nil {
		return fmt.Errorf("invalid search URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("search URL must include a host")
	}

	if c.KeywordsFile == "" {
		return fmt.Errorf("keywords file cannot be empty")
	}
	if c.CapabilitiesFile == "" {
		return fmt.Errorf("capabilities file cannot be empty")
	}
	if c.CursorFile == "" {
		return fmt.Errorf("cursor file cannot be empty")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}

	if c.EnrichWorkers <= 0 {
		return fmt.Errorf("enrich workers must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	if c.Chat.Endpoint == "" {
		return fmt.Errorf("chat endpoint cannot be empty")
	}
	if c.Chat.Model == "" {
		return fmt.Errorf("chat model cannot be empty")
	}
	if c.Chat.ProbeAttempts <= 0 {
		return fmt.Errorf("probe attempts must be positive")
	}
	if c.Chat.ProbeDelay < 0 {
		return fmt.Errorf("probe delay cannot be negative")
	}
	if c.Chat.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}

	return nil
}

// EnvString returns the value of an environment variable and whether it was
// set to something non-empty.
func EnvString(name string) (string, bool) {
	value := os.Getenv(name)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses an integer environment variable.
func EnvInt(name string) (int, bool, error) {
	value, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return parsed, true, nil
}
