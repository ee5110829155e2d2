package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// AppName keys the settings directory.
	AppName = "remove-bg"

	NamingTimestamp = "timestamp"
	NamingFixed     = "fixed"

	BackendCommand = "command"
	BackendHTTP    = "http"
	BackendKey     = "key"
)

// Config represents the main configuration structure
type Config struct {
	ImportFolder string        `mapstructure:"import_folder"`
	ExportFolder string        `mapstructure:"export_folder"`
	Extensions   []string      `mapstructure:"extensions"`
	Output       OutputConfig  `mapstructure:"output"`
	Remover      RemoverConfig `mapstructure:"remover"`
	Logging      LoggingConfig `mapstructure:"logging"`
	Web          WebConfig     `mapstructure:"web"`
}

// OutputConfig controls how results are named and written
type OutputConfig struct {
	Naming           string `mapstructure:"naming"`
	ResizeToOriginal bool   `mapstructure:"resize_to_original"`
	JPEGQuality      int    `mapstructure:"jpeg_quality"`
	OpenExportFolder bool   `mapstructure:"open_export_folder"`
}

// RemoverConfig selects and configures the background removal backend
type RemoverConfig struct {
	Backend      string   `mapstructure:"backend"`
	Command      string   `mapstructure:"command"`
	Args         []string `mapstructure:"args"`
	URL          string   `mapstructure:"url"`
	Model        string   `mapstructure:"model"`
	TimeoutSec   int      `mapstructure:"timeout_sec"`
	KeyTolerance float64  `mapstructure:"key_tolerance"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// WebConfig contains settings of the web interface
type WebConfig struct {
	Port int `mapstructure:"port"`
}

// Folders is the persisted pair of import and export folders.
type Folders struct {
	Import string
	Export string
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Extensions: []string{".png", ".jpg", ".jpeg"},
		Output: OutputConfig{
			Naming:           NamingTimestamp,
			ResizeToOriginal: false,
			JPEGQuality:      95,
			OpenExportFolder: true,
		},
		Remover: RemoverConfig{
			Backend:      BackendCommand,
			Command:      "rembg",
			Args:         []string{"i", "-m", "{model}", "{input}", "{output}"},
			URL:          "http://127.0.0.1:7000/api/remove",
			Model:        "u2net",
			TimeoutSec:   0, // no timeout
			KeyTolerance: 40,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "remove-bg.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
		Web: WebConfig{
			Port: 8080,
		},
	}
}

// DefaultPath returns the settings file location keyed by the application name.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, AppName, "config.yaml"), nil
}

// Store is the durable settings store. It reads the YAML file once at startup and
// rewrites it whenever the folders change.
type Store struct {
	v    *viper.Viper
	path string
}

// NewStore loads the settings file at path. A missing file is not an error; defaults are used.
func NewStore(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)

	setDefaults(v, DefaultConfig())

	// Enable environment variable support
	v.SetEnvPrefix("REMOVE_BG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	return &Store{v: v, path: path}, nil
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// Config unmarshals and validates the current settings.
func (s *Store) Config() (*Config, error) {
	cfg := DefaultConfig()
	if err := s.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFolders returns the persisted folders.
func (s *Store) LoadFolders() (Folders, error) {
	return Folders{
		Import: s.v.GetString("import_folder"),
		Export: s.v.GetString("export_folder"),
	}, nil
}

// SaveFolders persists the folders to the settings file.
func (s *Store) SaveFolders(f Folders) error {
	if f.Import == "" || f.Export == "" {
		return fmt.Errorf("import and export folders are required")
	}

	s.v.Set("import_folder", f.Import)
	s.v.Set("export_folder", f.Export)

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validNaming := map[string]bool{
		NamingTimestamp: true,
		NamingFixed:     true,
	}
	if !validNaming[c.Output.Naming] {
		return fmt.Errorf("invalid output.naming: %s (valid: timestamp, fixed)", c.Output.Naming)
	}

	if c.Output.JPEGQuality <= 0 || c.Output.JPEGQuality > 100 {
		c.Output.JPEGQuality = 95
	}

	validBackends := map[string]bool{
		BackendCommand: true,
		BackendHTTP:    true,
		BackendKey:     true,
	}
	if !validBackends[c.Remover.Backend] {
		return fmt.Errorf("invalid remover.backend: %s (valid: command, http, key)", c.Remover.Backend)
	}
	if c.Remover.Backend == BackendCommand && c.Remover.Command == "" {
		return fmt.Errorf("remover.command is required for the command backend")
	}
	if c.Remover.Backend == BackendHTTP && c.Remover.URL == "" {
		return fmt.Errorf("remover.url is required for the http backend")
	}
	if c.Remover.TimeoutSec < 0 {
		c.Remover.TimeoutSec = 0
	}
	if c.Remover.KeyTolerance <= 0 {
		c.Remover.KeyTolerance = 40
	}

	c.Extensions = normalizeExtensions(c.Extensions)
	if len(c.Extensions) == 0 {
		c.Extensions = DefaultConfig().Extensions
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	if c.Web.Port <= 0 {
		c.Web.Port = 8080
	}

	return nil
}

// IsImageExtension checks if the extension is one of the accepted input formats
func (c *Config) IsImageExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supportedExt := range c.Extensions {
		if ext == supportedExt {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("import_folder", d.ImportFolder)
	v.SetDefault("export_folder", d.ExportFolder)
	v.SetDefault("extensions", d.Extensions)

	v.SetDefault("output.naming", d.Output.Naming)
	v.SetDefault("output.resize_to_original", d.Output.ResizeToOriginal)
	v.SetDefault("output.jpeg_quality", d.Output.JPEGQuality)
	v.SetDefault("output.open_export_folder", d.Output.OpenExportFolder)

	v.SetDefault("remover.backend", d.Remover.Backend)
	v.SetDefault("remover.command", d.Remover.Command)
	v.SetDefault("remover.args", d.Remover.Args)
	v.SetDefault("remover.url", d.Remover.URL)
	v.SetDefault("remover.model", d.Remover.Model)
	v.SetDefault("remover.timeout_sec", d.Remover.TimeoutSec)
	v.SetDefault("remover.key_tolerance", d.Remover.KeyTolerance)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file_path", d.Logging.FilePath)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)

	v.SetDefault("web.port", d.Web.Port)
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return normalized
}
