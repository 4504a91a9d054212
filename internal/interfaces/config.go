package interfaces

import (
	"context"
	"time"
)

// ConfigManager locates, loads and writes the companion configuration
type ConfigManager interface {
	Initialize(ctx context.Context, opts InitOptions) error
	ResolveConfigPath(explicit string) (string, error)
	LoadConfig(configPath string) (*CompanionConfig, error)
}

// InitOptions contains parameters for `zt100 init`
type InitOptions struct {
	ConfigPath    string
	ManualURL     string
	DeviceURL     string
	CacheDir      string
	BundledPath   string
	VerifyDevice  bool
	DeviceManager DeviceManager
	StateManager  StateManager
}

// CompanionConfig represents the companion configuration file
type CompanionConfig struct {
	Version int          `yaml:"version" mapstructure:"version"`
	Manual  ManualConfig `yaml:"manual" mapstructure:"manual"`
	Device  DeviceConfig `yaml:"device" mapstructure:"device"`
	Server  ServerConfig `yaml:"server" mapstructure:"server"`
	// StatePath is derived from the config location, never written.
	StatePath string `yaml:"-" mapstructure:"-"`
}

// ManualConfig contains manual synchronization settings
type ManualConfig struct {
	URL              string        `yaml:"url" mapstructure:"url"`
	CacheDir         string        `yaml:"cache_dir" mapstructure:"cache_dir"`
	FileName         string        `yaml:"file_name" mapstructure:"file_name"`
	BundledPath      string        `yaml:"bundled_path,omitempty" mapstructure:"bundled_path"`
	MinCheckInterval time.Duration `yaml:"min_check_interval" mapstructure:"min_check_interval"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`
	DownloadTimeout  time.Duration `yaml:"download_timeout" mapstructure:"download_timeout"`
}

// DeviceConfig contains device control panel settings
type DeviceConfig struct {
	URL     string        `yaml:"url" mapstructure:"url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ServerConfig contains settings for the local HTTP surface
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}
