package cli

import (
	"path/filepath"

	"github.com/k4lls/zt100/internal/device"
	"github.com/k4lls/zt100/internal/errors"
	"github.com/k4lls/zt100/internal/interfaces"
	"github.com/spf13/cobra"
)

var (
	initManualURL   string
	initDeviceURL   string
	initCacheDir    string
	initBundledPath string
	initVerify      bool
	initSkipCheck   bool

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Create the zt100 configuration",
		Long: `
Create the zt100 configuration and state database.

Without flags, an interactive prompt asks for the manual URL, the control
panel address and the fallback manual. Flags skip the matching questions:
  --manual-url=https://example.com/ZT-100-Manual.pdf
  --device-url=http://192.168.4.1/
  --verify-device=false

After writing the configuration, init downloads the manual once unless
--skip-check is given.`,
		Args: cobra.NoArgs,
		RunE: runInit,
	}
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initManualURL, "manual-url", "", "URL of the published ZT-100 manual")
	initCmd.Flags().StringVar(&initDeviceURL, "device-url", "", "control panel address (default http://192.168.4.1/)")
	initCmd.Flags().StringVar(&initCacheDir, "cache-dir", "", "directory for the cached manual")
	initCmd.Flags().StringVar(&initBundledPath, "bundled-path", "", "read-only PDF to use as the fallback manual")
	initCmd.Flags().BoolVar(&initVerify, "verify-device", false, "require the control panel to answer before writing the configuration")
	initCmd.Flags().BoolVar(&initSkipCheck, "skip-check", false, "do not download the manual after init")
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	manualURL := initManualURL
	if manualURL == "" {
		var err error
		manualURL, err = provideURL("Manual URL:", "")
		if err != nil {
			return errors.NewGenericError("could not retrieve manual url", err)
		}
	}

	deviceURL := initDeviceURL
	if deviceURL == "" && !cmd.Flags().Changed("manual-url") {
		var err error
		deviceURL, err = provideURL("Control panel address:", device.DefaultURL)
		if err != nil {
			return errors.NewGenericError("could not retrieve control panel address", err)
		}
	}

	bundledPath := initBundledPath
	if bundledPath == "" && !cmd.Flags().Changed("manual-url") {
		origin, err := selectOrigin(originEmbedded)
		if err != nil {
			return errors.NewGenericError("could not select fallback manual", err)
		}
		if origin == originDisk {
			if bundledPath, err = provideInput("Path to the fallback PDF:", ""); err != nil {
				return errors.NewGenericError("could not retrieve fallback path", err)
			}
		}
	}
	if bundledPath != "" {
		abs, err := filepath.Abs(bundledPath)
		if err != nil {
			return errors.NewGenericError("failed to resolve absolute path", err)
		}
		bundledPath = abs
	}

	verify := initVerify
	if !cmd.Flags().Changed("verify-device") && !cmd.Flags().Changed("manual-url") {
		var err error
		if verify, err = confirm("Check that the control panel answers now? (requires the ZT-100 Wi-Fi)", false); err != nil {
			return errors.NewGenericError("could not read answer", err)
		}
	}

	configMgr := getConfigManager()
	stateMgr := getStateManager()
	defer stateMgr.Close()

	opts := interfaces.InitOptions{
		ConfigPath:    cfgFile,
		ManualURL:     manualURL,
		DeviceURL:     deviceURL,
		CacheDir:      initCacheDir,
		BundledPath:   bundledPath,
		VerifyDevice:  verify,
		DeviceManager: device.NewManager(deviceURL, 0),
		StateManager:  stateMgr,
	}

	if err := configMgr.Initialize(ctx, opts); err != nil {
		return err
	}
	stateMgr.Close()

	path, _ := configMgr.ResolveConfigPath(cfgFile)
	cmd.Println()
	cmd.Printf("✅ Wrote configuration to %s\n", path)

	if initSkipCheck {
		cmd.Println("Run `zt100 manual check` to download the manual.")
		return nil
	}

	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	result := env.manual.CheckForUpdate(ctx, true)
	cmd.Println(describeForInit(result, env.manual.ResolvePreferredSource()))
	cmd.Println()
	cmd.Println("📝 Next steps:")
	cmd.Println("   zt100 manual status    show the cached copy and when it was checked")
	cmd.Println("   zt100 serve            open the manual at http://" + env.config.Server.Addr + "/manual")
	cmd.Println("   zt100 device status    check the control panel (join the ZT-100 Wi-Fi first)")
	return nil
}

func describeForInit(result interfaces.SyncResult, source interfaces.ManualSource) string {
	if result.Outcome == interfaces.OutcomeFailed {
		return "Could not download the manual yet (" + result.Error + "). Using: " + source.Label
	}
	return "Manual ready. Using: " + source.Label
}
