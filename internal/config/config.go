package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/FranLegon/drive-doc-relay/internal/logger"
	"github.com/FranLegon/drive-doc-relay/internal/model"
)

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultMaxUploadMB = 64
	DefaultRootFolder  = "My Doc"
	DefaultLogLevel    = "info"
	DefaultMergeSuffix = "_merged"
	DefaultGraphScope  = "https://graph.microsoft.com/.default"
)

// DefaultFolders are created under the root folder on first use
var DefaultFolders = []string{"Bills", "Notes", "Certificates", "Receipts"}

// Config defines every setting of the relay. It is read from an optional JSON file
// and then overridden from the environment.
type Config struct {
	Provider  model.Provider  `json:"provider"`
	Server    ServerConfig    `json:"server"`
	Folders   FolderConfig    `json:"folders"`
	Google    GoogleConfig    `json:"google"`
	Microsoft MicrosoftConfig `json:"microsoft"`
	Log       LogConfig       `json:"log"`
	Merge     MergeConfig     `json:"merge"`
}

type ServerConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	MaxUploadMB int    `json:"max_upload_mb"`
}

type FolderConfig struct {
	Root     string   `json:"root"`
	Defaults []string `json:"defaults"`
}

type GoogleConfig struct {
	// Endpoint overrides the Drive API base URL; empty uses the public API
	Endpoint string `json:"endpoint,omitempty"`
}

type MicrosoftConfig struct {
	Scopes []string `json:"scopes"`
}

type LogConfig struct {
	Level string `json:"level"`
}

type MergeConfig struct {
	Suffix string `json:"suffix"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Provider: model.ProviderGoogle,
		Server: ServerConfig{
			Host:        DefaultHost,
			Port:        DefaultPort,
			MaxUploadMB: DefaultMaxUploadMB,
		},
		Folders: FolderConfig{
			Root:     DefaultRootFolder,
			Defaults: append([]string(nil), DefaultFolders...),
		},
		Microsoft: MicrosoftConfig{Scopes: []string{DefaultGraphScope}},
		Log:       LogConfig{Level: DefaultLogLevel},
		Merge:     MergeConfig{Suffix: DefaultMergeSuffix},
	}
}

// Load builds the configuration from the defaults, the JSON file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DOCRELAY_HOST"); ok && v != "" {
		c.Server.Host = v
	}

	// PORT is the platform convention; DOCRELAY_PORT wins when both are set
	for _, key := range []string{"PORT", "DOCRELAY_PORT"} {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		c.Server.Port = port
	}

	if v, ok := lookup("DOCRELAY_PROVIDER"); ok && v != "" {
		c.Provider = model.Provider(strings.ToLower(v))
	}
	if v, ok := lookup("DOCRELAY_ROOT_FOLDER"); ok && v != "" {
		c.Folders.Root = v
	}
	if v, ok := lookup("DOCRELAY_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("DOCRELAY_GOOGLE_ENDPOINT"); ok && v != "" {
		c.Google.Endpoint = v
	}
	return nil
}

// Validate checks the configuration for values the relay cannot run with
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case model.ProviderGoogle, model.ProviderMicrosoft, model.ProviderMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported provider: %q", c.Provider))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port: %d", c.Server.Port))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("max_upload_mb must be positive, got %d", c.Server.MaxUploadMB))
	}

	if c.Folders.Root == "" {
		errs = append(errs, errors.New("root folder name is required"))
	}
	seen := make(map[string]bool)
	for _, name := range c.Folders.Defaults {
		switch {
		case name == "":
			errs = append(errs, errors.New("default folder names must not be empty"))
		case name == c.Folders.Root:
			errs = append(errs, fmt.Errorf("default folder %q has the same name as the root", name))
		case seen[name]:
			errs = append(errs, fmt.Errorf("duplicate default folder %q", name))
		}
		seen[name] = true
	}

	if c.Provider == model.ProviderMicrosoft && len(c.Microsoft.Scopes) == 0 {
		errs = append(errs, errors.New("microsoft provider requires at least one scope"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level: %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

// Addr returns the host:port the server listens on
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LogLevel returns the configured logger level
func (c *Config) LogLevel() logger.LogLevel {
	return logger.ParseLevel(c.Log.Level)
}

// MaxUploadBytes returns the request body limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}
