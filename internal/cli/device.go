package cli

import (
	"context"
	"time"

	"github.com/k4lls/zt100/internal/console"
	"github.com/k4lls/zt100/internal/errors"
	"github.com/spf13/cobra"
)

var (
	waitTimeout time.Duration

	deviceCmd = &cobra.Command{
		Use:   "device",
		Short: "Check the ZT-100 control panel",
		Long: `Check whether the ZT-100 control panel answers at device.url.

Join the ZT-100 Wi-Fi network first; zt100 does not manage Wi-Fi.`,
	}

	deviceStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Probe the control panel once",
		Args:  cobra.NoArgs,
		RunE:  runDeviceStatus,
	}

	deviceWaitCmd = &cobra.Command{
		Use:   "wait",
		Short: "Wait until the control panel answers",
		Args:  cobra.NoArgs,
		RunE:  runDeviceWait,
	}
)

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.AddCommand(deviceStatusCmd, deviceWaitCmd)
	deviceWaitCmd.Flags().DurationVar(&waitTimeout, "timeout", time.Minute, "give up after this long")
}

func runDeviceStatus(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	status, err := env.device.Status(cmd.Context())
	if err != nil {
		return err
	}
	console.WriteDevice(cmd.OutOrStdout(), status)

	if !status.Reachable {
		return errors.NewDeviceError("device control panel is not reachable at "+status.URL, nil)
	}
	return nil
}

func runDeviceWait(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	if waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, waitTimeout)
		defer cancel()
	}

	cmd.Printf("Waiting for the control panel at %s...\n", env.device.URL())
	if err := env.device.WaitForDevice(ctx); err != nil {
		return errors.NewDeviceError("device control panel did not answer", err)
	}
	cmd.Println("Control panel is reachable.")
	return nil
}
