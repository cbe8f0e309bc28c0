package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"roomcal/internal/model"
)

const (
	// HardOccurrenceCap bounds any single recurrence series.
	HardOccurrenceCap = 100

	defaultListen          = "127.0.0.1:5001"
	defaultScanCeilingDays = 730
	defaultExportCron      = "*/15 * * * *"
)

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "memory" (default, volatile) or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is the Postgres connection string, e.g.
	// "host=localhost user=roomcal dbname=roomcal sslmode=disable".
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// ExportConfig controls the periodic iCalendar snapshot.
type ExportConfig struct {
	// ICSPath is where the feed is written. Empty disables the job.
	ICSPath string `yaml:"ics_path" json:"ics_path"`
	// Cron is a 5-field cron expression for the snapshot job.
	Cron string `yaml:"cron" json:"cron"`
}

// PrintConfig controls the headless Chromium PDF export of the print sheet.
type PrintConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	TimeoutSec int  `yaml:"timeout_sec" json:"timeout_sec"`
	Landscape  bool `yaml:"landscape" json:"landscape"`

	// NoSandbox is needed when Chromium runs as root, e.g. in a container.
	NoSandbox bool `yaml:"no_sandbox" json:"no_sandbox"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Rooms is the venue's fixed room set.
	Rooms model.Rooms `yaml:"rooms" json:"rooms"`

	// Palette lists the allowed event colors; DefaultColor is used when a
	// draft carries none.
	Palette      []string `yaml:"palette" json:"palette"`
	DefaultColor string   `yaml:"default_color" json:"default_color"`

	// HolidaysFile points at a YAML holiday table. Empty means no holidays.
	HolidaysFile string `yaml:"holidays_file" json:"holidays_file"`

	// MaxOccurrences caps one recurrence series (never above 100).
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	// ScanCeilingDays bounds how far past its start a legacy series is
	// scanned for collisions.
	ScanCeilingDays int `yaml:"scan_ceiling_days" json:"scan_ceiling_days"`

	Store  StoreConfig  `yaml:"store" json:"store"`
	Export ExportConfig `yaml:"export" json:"export"`
	Print  PrintConfig  `yaml:"print" json:"print"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultRooms is the venue's room set used on first run.
func DefaultRooms() model.Rooms {
	return model.Rooms{
		{ID: "r3-ausstellung", Name: "R3 Ausstellung"},
		{ID: "r3-veranstaltung", Name: "R3 Veranstaltung"},
		{ID: "kabinett", Name: "Kabinett"},
		{ID: "speckdrumm", Name: "Speckdrumm"},
		{ID: "extern1", Name: "Extern 1"},
		{ID: "extern2", Name: "Extern 2"},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          defaultListen,
		LogLevel:        "info",
		Rooms:           DefaultRooms(),
		Palette:         append([]string(nil), model.DefaultPalette...),
		DefaultColor:    model.DefaultColor,
		MaxOccurrences:  HardOccurrenceCap,
		ScanCeilingDays: defaultScanCeilingDays,
		Store:           StoreConfig{Driver: "memory"},
		Export:          ExportConfig{Cron: defaultExportCron},
		Print:           PrintConfig{TimeoutSec: 30, Landscape: true},
	}
}

// Normalize fills in missing/zero values so that partially-filled
// configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.Rooms) == 0 {
		c.Rooms = DefaultRooms()
	}
	if len(c.Palette) == 0 {
		c.Palette = append([]string(nil), model.DefaultPalette...)
	}
	if c.DefaultColor == "" {
		c.DefaultColor = model.DefaultColor
	}
	if c.MaxOccurrences <= 0 || c.MaxOccurrences > HardOccurrenceCap {
		c.MaxOccurrences = HardOccurrenceCap
	}
	if c.ScanCeilingDays <= 0 {
		c.ScanCeilingDays = defaultScanCeilingDays
	}
	switch strings.ToLower(c.Store.Driver) {
	case "postgres", "postgresql":
		c.Store.Driver = "postgres"
	default:
		c.Store.Driver = "memory"
	}
	if c.Export.Cron == "" {
		c.Export.Cron = defaultExportCron
	}
	if c.Print.TimeoutSec <= 0 {
		c.Print.TimeoutSec = 30
	}
}

// ApplyEnv overrides selected fields from the environment. Values from a
// .env file are expected to be loaded into the process beforehand.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ROOMCAL_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("ROOMCAL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ROOMCAL_DSN"); v != "" {
		c.Store.Driver = "postgres"
		c.Store.DSN = v
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there with
//     0600 perms and returned.
//   - Otherwise the YAML is decoded and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Still hand back the defaults so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".roomcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
