// Package config locates, loads and writes zt100.yaml.
package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/loggo/v2"
	"github.com/k4lls/zt100/internal/errors"
	"github.com/k4lls/zt100/internal/interfaces"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var logger = loggo.GetLogger("zt100.config")

const (
	// FileName is the name of the configuration file
	FileName = "zt100.yaml"
	// StateFileName is the SQLite database kept next to the configuration
	StateFileName = "state.db"
	// EnvPrefix prefixes environment overrides, e.g. ZT100_MANUAL_URL
	EnvPrefix = "ZT100"

	currentVersion = 1
)

// Manager implements the ConfigManager interface
type Manager struct {
	// configDir overrides the user configuration directory, for tests
	configDir string
}

// NewManager creates a new ConfigManager instance
func NewManager() *Manager {
	return &Manager{}
}

// NewManagerIn creates a ConfigManager rooted at dir instead of the user
// configuration directory
func NewManagerIn(dir string) *Manager {
	return &Manager{configDir: dir}
}

// DefaultDir returns <user config dir>/zt100
func (m *Manager) DefaultDir() (string, error) {
	if m.configDir != "" {
		return m.configDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.NewGenericError("failed to locate user configuration directory", err)
	}
	return filepath.Join(base, "zt100"), nil
}

// ResolveConfigPath returns explicit when given, else the default location
func (m *Manager) ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		abs, err := filepath.Abs(explicit)
		if err != nil {
			return "", errors.NewGenericError("failed to resolve absolute path", err)
		}
		return abs, nil
	}

	dir, err := m.DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// SetDefaults registers default values on v
func (m *Manager) SetDefaults(v *viper.Viper) error {
	dir, err := m.DefaultDir()
	if err != nil {
		return err
	}

	v.SetDefault("version", currentVersion)
	v.SetDefault("manual.cache_dir", filepath.Join(dir, "ManualCache"))
	v.SetDefault("manual.file_name", "ZT-100-Manual.pdf")
	v.SetDefault("manual.bundled_path", "")
	v.SetDefault("manual.min_check_interval", 6*time.Hour)
	v.SetDefault("manual.probe_timeout", 15*time.Second)
	v.SetDefault("manual.download_timeout", 120*time.Second)
	v.SetDefault("device.url", "http://192.168.4.1/")
	v.SetDefault("device.timeout", 5*time.Second)
	v.SetDefault("server.addr", "127.0.0.1:8100")
	return nil
}

func (m *Manager) newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys viper already knows about
	v.BindEnv("manual.url")

	if err := m.SetDefaults(v); err != nil {
		return nil, err
	}
	return v, nil
}

// LoadConfig parses the configuration file at configPath
func (m *Manager) LoadConfig(configPath string) (*interfaces.CompanionConfig, error) {
	// Check if config file exists
	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotConfiguredError(fmt.Sprintf("no configuration at %s, run `zt100 init` first", configPath))
		}
		return nil, errors.NewConfigError("failed to access configuration file", err)
	}

	v, err := m.newViper(configPath)
	if err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.NewConfigError("failed to parse configuration file", err)
	}

	var config interfaces.CompanionConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError("failed to parse configuration structure", err)
	}
	config.StatePath = filepath.Join(filepath.Dir(configPath), StateFileName)

	if err := Validate(&config); err != nil {
		return nil, err
	}

	logger.Debugf("loaded configuration from %s", configPath)
	return &config, nil
}

// Validate checks the fields every command relies on
func Validate(config *interfaces.CompanionConfig) error {
	if config.Version == 0 {
		return errors.NewConfigError("invalid configuration: missing version", nil)
	}
	if config.Version > currentVersion {
		return errors.NewConfigError(fmt.Sprintf("invalid configuration: unsupported version %d", config.Version), nil)
	}
	if err := validateHTTPURL("manual.url", config.Manual.URL); err != nil {
		return err
	}
	if err := validateHTTPURL("device.url", config.Device.URL); err != nil {
		return err
	}
	if config.Manual.CacheDir == "" {
		return errors.NewConfigError("invalid configuration: missing manual.cache_dir", nil)
	}
	if strings.ContainsAny(config.Manual.FileName, `/\`) || config.Manual.FileName == "" {
		return errors.NewConfigError("invalid configuration: manual.file_name must be a plain file name", nil)
	}
	if config.Manual.MinCheckInterval < 0 || config.Manual.ProbeTimeout < 0 || config.Manual.DownloadTimeout < 0 {
		return errors.NewConfigError("invalid configuration: durations must not be negative", nil)
	}
	return nil
}

func validateHTTPURL(key, raw string) error {
	if raw == "" {
		return errors.NewConfigError(fmt.Sprintf("invalid configuration: missing %s", key), nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.NewConfigError(fmt.Sprintf("invalid configuration: %s is not a URL", key), err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewConfigError(fmt.Sprintf("invalid configuration: %s must be an http(s) URL", key), nil)
	}
	return nil
}

// Initialize writes a new configuration file and creates the state database
func (m *Manager) Initialize(ctx context.Context, opts interfaces.InitOptions) error {
	configPath, err := m.ResolveConfigPath(opts.ConfigPath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(configPath); err == nil {
		return errors.NewConfigError(fmt.Sprintf("configuration already exists at %s", configPath), nil)
	}

	v, err := m.newViper(configPath)
	if err != nil {
		return err
	}

	config := interfaces.CompanionConfig{}
	if err := v.Unmarshal(&config); err != nil {
		return errors.NewConfigError("failed to build default configuration", err)
	}
	config.Version = currentVersion
	if opts.ManualURL != "" {
		config.Manual.URL = strings.TrimSpace(opts.ManualURL)
	}
	if opts.DeviceURL != "" {
		config.Device.URL = strings.TrimSpace(opts.DeviceURL)
	}
	if opts.CacheDir != "" {
		config.Manual.CacheDir = opts.CacheDir
	}
	config.Manual.BundledPath = opts.BundledPath

	if err := Validate(&config); err != nil {
		return err
	}

	if opts.VerifyDevice {
		if opts.DeviceManager == nil {
			return errors.NewGenericError("device manager not provided", nil)
		}
		if err := opts.DeviceManager.HealthCheck(ctx, config.Device.URL); err != nil {
			return errors.NewDeviceError("device control panel health check failed", err)
		}
	}

	configDir := filepath.Dir(configPath)
	var createdDir string
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		createdDir = configDir
	}

	var stateDB string
	rollback := func() {
		if stateDB != "" {
			os.Remove(stateDB)
		}
		if createdDir != "" {
			os.RemoveAll(createdDir)
		}
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return errors.NewGenericError(fmt.Sprintf("failed to create directory %s", configDir), err)
	}

	// Initialize state database
	stateMgr := opts.StateManager
	if stateMgr == nil {
		rollback()
		return errors.NewGenericError("state manager not provided", nil)
	}

	stateDB = filepath.Join(configDir, StateFileName)
	if err := stateMgr.Initialize(stateDB); err != nil {
		rollback()
		return errors.NewGenericError("failed to initialize state database", err)
	}

	if err := m.writeConfig(configPath, &config); err != nil {
		rollback()
		return err
	}

	logger.Infof("wrote configuration to %s", configPath)
	return nil
}

// writeConfig writes the configuration to configPath
func (m *Manager) writeConfig(configPath string, config *interfaces.CompanionConfig) error {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.Set("version", config.Version)
	v.Set("manual.url", config.Manual.URL)
	v.Set("manual.cache_dir", config.Manual.CacheDir)
	v.Set("manual.file_name", config.Manual.FileName)
	if config.Manual.BundledPath != "" {
		v.Set("manual.bundled_path", config.Manual.BundledPath)
	}
	v.Set("manual.min_check_interval", config.Manual.MinCheckInterval.String())
	v.Set("manual.probe_timeout", config.Manual.ProbeTimeout.String())
	v.Set("manual.download_timeout", config.Manual.DownloadTimeout.String())
	v.Set("device.url", config.Device.URL)
	v.Set("device.timeout", config.Device.Timeout.String())
	v.Set("server.addr", config.Server.Addr)

	if err := v.WriteConfig(); err != nil {
		return errors.NewGenericError("failed to write config file", err)
	}

	return nil
}

// document mirrors CompanionConfig with durations spelled the way they are written
type document struct {
	Version int `yaml:"version"`
	Manual  struct {
		URL              string `yaml:"url"`
		CacheDir         string `yaml:"cache_dir"`
		FileName         string `yaml:"file_name"`
		BundledPath      string `yaml:"bundled_path,omitempty"`
		MinCheckInterval string `yaml:"min_check_interval"`
		ProbeTimeout     string `yaml:"probe_timeout"`
		DownloadTimeout  string `yaml:"download_timeout"`
	} `yaml:"manual"`
	Device struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"device"`
	Server interfaces.ServerConfig `yaml:"server"`
}

// Render returns the effective configuration as YAML
func Render(config *interfaces.CompanionConfig) ([]byte, error) {
	var doc document
	doc.Version = config.Version
	doc.Manual.URL = config.Manual.URL
	doc.Manual.CacheDir = config.Manual.CacheDir
	doc.Manual.FileName = config.Manual.FileName
	doc.Manual.BundledPath = config.Manual.BundledPath
	doc.Manual.MinCheckInterval = config.Manual.MinCheckInterval.String()
	doc.Manual.ProbeTimeout = config.Manual.ProbeTimeout.String()
	doc.Manual.DownloadTimeout = config.Manual.DownloadTimeout.String()
	doc.Device.URL = config.Device.URL
	doc.Device.Timeout = config.Device.Timeout.String()
	doc.Server = config.Server

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, errors.NewGenericError("failed to render configuration", err)
	}
	return out, nil
}
