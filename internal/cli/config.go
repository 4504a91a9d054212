package cli

import (
	"fmt"

	"github.com/k4lls/zt100/internal/config"
	"github.com/spf13/cobra"
)

var (
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect the zt100 configuration",
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration, including defaults and ZT100_ overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}

	configPathCmd = &cobra.Command{
		Use:   "path",
		Short: "Print the location of the configuration file",
		Args:  cobra.NoArgs,
		RunE:  runConfigPath,
	}
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr := getConfigManager()
	path, err := configMgr.ResolveConfigPath(cfgFile)
	if err != nil {
		return err
	}

	cfg, err := configMgr.LoadConfig(path)
	if err != nil {
		return err
	}

	out, err := config.Render(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, out)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := getConfigManager().ResolveConfigPath(cfgFile)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
