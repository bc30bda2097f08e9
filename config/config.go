package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// DefaultArtifactName is the artifact file name used when none is configured.
const DefaultArtifactName = "_index.txt"

// Config holds the configuration for the indexer, searcher and servers.
type Config struct {
	Root     string        `toml:"root"`
	Artifact string        `toml:"artifact"`
	Owner    string        `toml:"owner"`
	Grouped  bool          `toml:"grouped"`
	Extract  ExtractConfig `toml:"extract"`
	Search   SearchConfig  `toml:"search"`
	Store    StoreConfig   `toml:"store"`
	Server   ServerConfig  `toml:"server"`
}

// ExtractConfig tunes the format extractors.
type ExtractConfig struct {
	PDFTimeBudget        Duration `toml:"pdf_time_budget"`
	PDFPageCap           int      `toml:"pdf_page_cap"`
	PDFPasswords         []string `toml:"pdf_passwords"`
	TextLayerSamplePages int      `toml:"text_layer_sample_pages"`
	TextLayerMinChars    int      `toml:"text_layer_min_chars"`
	LegacyXLS            bool     `toml:"legacy_xls"`
	OCR                  bool     `toml:"ocr"`
	OCRLang              string   `toml:"ocr_lang"`
	OCRMaxPages          int      `toml:"ocr_max_pages"`
}

// SearchConfig holds searcher defaults.
type SearchConfig struct {
	Context            int `toml:"context"`
	MaxSnippetsPerTerm int `toml:"max_snippets_per_term"`
	GapMinLen          int `toml:"gap_min_len"`
	GapMaxLen          int `toml:"gap_max_len"`
}

// StoreConfig configures the SQLite-backed index.
type StoreConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr          string   `toml:"addr"`
	WatchDebounce Duration `toml:"watch_debounce"`
}

// Duration is a time.Duration that reads and writes as text ("8s", "500ms").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Root:     ".",
		Artifact: DefaultArtifactName,
		Owner:    "default",
		Extract: ExtractConfig{
			PDFTimeBudget:        Duration{8 * time.Second},
			PDFPageCap:           200,
			TextLayerSamplePages: 3,
			TextLayerMinChars:    50,
			LegacyXLS:            true,
			OCRLang:              "rus+eng",
			OCRMaxPages:          10,
		},
		Search: SearchConfig{
			Context:            100,
			MaxSnippetsPerTerm: 3,
			GapMinLen:          2,
			GapMaxLen:          8,
		},
		Store: StoreConfig{
			Path: "procdocs.db",
		},
		Server: ServerConfig{
			Addr:          ":8080",
			WatchDebounce: Duration{2 * time.Second},
		},
	}
}

// Load reads configuration from an optional TOML file, then applies
// PROCDOCS_* environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Artifact == "":
		return fmt.Errorf("%w: artifact path is empty", ErrInvalid)
	case c.Extract.PDFPageCap <= 0:
		return fmt.Errorf("%w: pdf_page_cap must be positive", ErrInvalid)
	case c.Extract.PDFTimeBudget.Duration <= 0:
		return fmt.Errorf("%w: pdf_time_budget must be positive", ErrInvalid)
	case c.Search.Context < 0:
		return fmt.Errorf("%w: search context must not be negative", ErrInvalid)
	case c.Search.GapMinLen > c.Search.GapMaxLen:
		return fmt.Errorf("%w: gap_min_len exceeds gap_max_len", ErrInvalid)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Root = GetStringEnv("PROCDOCS_ROOT", c.Root)
	c.Artifact = GetStringEnv("PROCDOCS_ARTIFACT", c.Artifact)
	c.Owner = GetStringEnv("PROCDOCS_OWNER", c.Owner)
	c.Grouped = GetBoolEnv("PROCDOCS_GROUPED", c.Grouped)
	c.Extract.PDFTimeBudget.Duration = GetDurationEnv("PROCDOCS_PDF_TIME_BUDGET", c.Extract.PDFTimeBudget.Duration)
	c.Extract.PDFPageCap = GetIntEnv("PROCDOCS_PDF_PAGE_CAP", c.Extract.PDFPageCap)
	c.Extract.OCR = GetBoolEnv("PROCDOCS_OCR", c.Extract.OCR)
	c.Extract.OCRLang = GetStringEnv("PROCDOCS_OCR_LANG", c.Extract.OCRLang)
	c.Search.Context = GetIntEnv("PROCDOCS_SEARCH_CONTEXT", c.Search.Context)
	c.Store.Enabled = GetBoolEnv("PROCDOCS_STORE_ENABLED", c.Store.Enabled)
	c.Store.Path = GetStringEnv("PROCDOCS_STORE_PATH", c.Store.Path)
	c.Server.Addr = GetStringEnv("PROCDOCS_ADDR", c.Server.Addr)
	if pw := GetStringEnv("PROCDOCS_PDF_PASSWORDS", ""); pw != "" {
		c.Extract.PDFPasswords = strings.Split(pw, ",")
	}
}

func GetStringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
