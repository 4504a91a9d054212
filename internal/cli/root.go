package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/juju/loggo/v2"
	"github.com/k4lls/zt100/internal/config"
	"github.com/k4lls/zt100/internal/device"
	"github.com/k4lls/zt100/internal/errors"
	"github.com/k4lls/zt100/internal/interfaces"
	"github.com/k4lls/zt100/internal/manual"
	"github.com/k4lls/zt100/internal/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var logger = loggo.GetLogger("zt100.cli")

var (
	cfgFile  string
	logLevel string
	rootCmd  = &cobra.Command{
		Use:   "zt100",
		Short: "ZT-100 companion - keep the device manual at hand",
		Long: `zt100 is a companion for the ZT-100 device.

It keeps an offline copy of the ZT-100 user manual in sync with the copy
published online, falls back to the manual shipped with the binary when no
download has succeeded yet, and checks whether the device control panel is
reachable on the local network.`,
		SilenceUsage:      true,
		PersistentPreRunE: configureLogging,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command; commands stop when ctx is done
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <user config dir>/zt100/zt100.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "WARNING", "log level (TRACE, DEBUG, INFO, WARNING, ERROR)")
}

// configureLogging applies --log-level to every zt100 logger
func configureLogging(cmd *cobra.Command, args []string) error {
	level, ok := loggo.ParseLevel(strings.TrimSpace(logLevel))
	if !ok {
		return errors.NewConfigError(fmt.Sprintf("invalid log level %q", logLevel), nil)
	}
	if err := loggo.ConfigureLoggers("<root>=WARNING;zt100=" + level.String()); err != nil {
		return errors.NewConfigError("failed to configure logging", err)
	}
	return nil
}

// environment holds the managers a command needs, built from the configuration
type environment struct {
	config   *interfaces.CompanionConfig
	state    interfaces.StateManager
	manual   *manual.Manager
	device   *device.Manager
	registry *prometheus.Registry
}

func (e *environment) Close() {
	if err := e.state.Close(); err != nil {
		logger.Warningf("cannot close state database: %v", err)
	}
}

// Helper functions to get manager instances
func getConfigManager() *config.Manager {
	return config.NewManager()
}

func getStateManager() interfaces.StateManager {
	return state.NewManager()
}

// loadEnvironment reads the configuration and opens the state database
func loadEnvironment() (*environment, error) {
	configMgr := getConfigManager()
	path, err := configMgr.ResolveConfigPath(cfgFile)
	if err != nil {
		return nil, err
	}

	cfg, err := configMgr.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	stateMgr := getStateManager()
	if err := stateMgr.Initialize(cfg.StatePath); err != nil {
		return nil, errors.NewGenericError("could not initialize state management", err)
	}

	registry := prometheus.NewRegistry()
	bundle := manual.EmbeddedBundle()
	if cfg.Manual.BundledPath != "" {
		bundle = manual.DiskBundle(cfg.Manual.BundledPath)
	}

	manualMgr := manual.NewManager(manual.Config{
		URL:              cfg.Manual.URL,
		CacheDir:         cfg.Manual.CacheDir,
		FileName:         cfg.Manual.FileName,
		MinCheckInterval: cfg.Manual.MinCheckInterval,
	}, stateMgr,
		manual.WithFetcher(manual.NewHTTPFetcher(cfg.Manual.ProbeTimeout, cfg.Manual.DownloadTimeout)),
		manual.WithBundle(bundle),
		manual.WithHistory(stateMgr),
		manual.WithMetrics(manual.NewMetrics(registry)),
	)

	return &environment{
		config:   cfg,
		state:    stateMgr,
		manual:   manualMgr,
		device:   device.NewManager(cfg.Device.URL, cfg.Device.Timeout),
		registry: registry,
	}, nil
}
