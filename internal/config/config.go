package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains HTTP API bind and CORS configuration. Only Bind is read
// by the HTTP server; CORSOrigins, ReadHeaderTimout and ShutdownTimeout are
// loaded and defaulted but not applied (the server allows all origins and
// uses fixed 5s read-header and shutdown timeouts).
type Server struct {
	Bind             string   `toml:"bind"`
	CORSOrigins      []string `toml:"cors_origins"`
	ReadHeaderTimout int      `toml:"read_header_timeout_seconds"`
	ShutdownTimeout  int      `toml:"shutdown_timeout_seconds"`
}

// DB contains the embedded job/download store location.
type DB struct {
	Path string `toml:"path"`
}

// Queue contains job processor polling and reclamation timing.
type Queue struct {
	PollIntervalMs       int `toml:"poll_interval_ms"`
	ErrorRetryIntervalMs int `toml:"error_retry_interval_ms"`
	HeartbeatIntervalMs  int `toml:"heartbeat_interval_ms"`
	HeartbeatTimeoutMs   int `toml:"heartbeat_timeout_ms"`
}

// Downloads contains the model download coordinator's settings.
type Downloads struct {
	RegistryBaseURL  string `toml:"registry_base_url"`
	Dir              string `toml:"dir"`
	MaxConcurrentJobs int   `toml:"max_concurrent_jobs"`
	RequestTimeoutS  int    `toml:"request_timeout_seconds"`
}

// Logging contains log output configuration.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	Dir           string `toml:"dir"`
	RetentionDays int    `toml:"retention_days"`
	Development   bool   `toml:"development"`
}

// Registry contains process-registry port allocation settings.
type Registry struct {
	PortRangeStart int `toml:"port_range_start"`
	PortRangeEnd   int `toml:"port_range_end"`
	StopGraceMs    int `toml:"stop_grace_ms"`
}

// Images contains the generated-image storage location.
type Images struct {
	Dir string `toml:"dir"`
}

// GenerationParams carries default generation parameters for a model.
type GenerationParams struct {
	CFGScale       float64 `toml:"cfg_scale"`
	SampleSteps    int     `toml:"sample_steps"`
	SamplingMethod string  `toml:"sampling_method"`
	Width          int     `toml:"width"`
	Height         int     `toml:"height"`
	ClipSkip       int     `toml:"clip_skip"`
}

// ModelConfig is one [[models]] table entry: a static model descriptor.
type ModelConfig struct {
	ID                string            `toml:"id"`
	Name              string            `toml:"name"`
	Description       string            `toml:"description"`
	Command           string            `toml:"command"`
	Args              []string          `toml:"args"`
	APIURL            string            `toml:"api_url"`
	LoadMode          string            `toml:"load_mode"`
	ExecMode          string            `toml:"exec_mode"`
	Port              int               `toml:"port"`
	StartupTimeoutMs  int               `toml:"startup_timeout_ms"`
	GenerationParams  GenerationParams  `toml:"generation_params"`
	RegistryRepo      string            `toml:"registry_repo"`
	RegistryFiles     []string          `toml:"registry_files"`
	Capabilities      []string          `toml:"capabilities"`
}

// Config encapsulates all configuration values for forged.
//
// Configuration sections by subsystem:
//   - Server: HTTP API bind address and CORS
//   - DB: embedded SQLite store location
//   - Queue: job processor polling and heartbeat timing
//   - Downloads: model download coordinator settings
//   - Logging: log format, level, and retention
//   - Registry: process registry port range and shutdown grace period
//   - Images: generated-image storage location
//   - Models: static model descriptors, one [[models]] table per model
type Config struct {
	Server    Server        `toml:"server"`
	DB        DB            `toml:"db"`
	Queue     Queue         `toml:"queue"`
	Downloads Downloads     `toml:"downloads"`
	Logging   Logging       `toml:"logging"`
	Registry  Registry      `toml:"registry"`
	Images    Images        `toml:"images"`
	Models    []ModelConfig `toml:"models"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/forge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/forge/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("forge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Logging.Dir, c.Downloads.Dir, c.Images.Dir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dbDir := filepath.Dir(c.DB.Path); dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return fmt.Errorf("create db directory %q: %w", dbDir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ModelByID returns the model descriptor with the given id, if configured.
func (c *Config) ModelByID(id string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelConfig{}, false
}
