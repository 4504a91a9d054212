package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/k4lls/zt100/internal/console"
	"github.com/k4lls/zt100/internal/errors"
	"github.com/k4lls/zt100/internal/interfaces"
	"github.com/spf13/cobra"
)

var (
	checkForce    bool
	outputJSON    bool
	historyLimit  int
	watchInterval time.Duration

	manualCmd = &cobra.Command{
		Use:   "manual",
		Short: "Manage the offline copy of the ZT-100 manual",
	}

	manualCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "Check for a newer manual and install it",
		Long: `Check the published manual for changes and install it into the cache.

Unless --force is given, nothing happens when the previous check is more
recent than manual.min_check_interval (6h by default).`,
		Args: cobra.NoArgs,
		RunE: runManualCheck,
	}

	manualStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show cache and sync state",
		Args:  cobra.NoArgs,
		RunE:  runManualStatus,
	}

	manualPathCmd = &cobra.Command{
		Use:   "path",
		Short: "Print the location of the manual that would be opened",
		Args:  cobra.NoArgs,
		RunE:  runManualPath,
	}

	manualExportCmd = &cobra.Command{
		Use:   "export <file>",
		Short: "Copy the preferred manual to a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runManualExport,
	}

	manualHistoryCmd = &cobra.Command{
		Use:   "history",
		Short: "List recent update checks",
		Args:  cobra.NoArgs,
		RunE:  runManualHistory,
	}

	manualWatchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Check for updates periodically until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runManualWatch,
	}
)

func init() {
	rootCmd.AddCommand(manualCmd)
	manualCmd.AddCommand(manualCheckCmd, manualStatusCmd, manualPathCmd, manualExportCmd, manualHistoryCmd, manualWatchCmd)

	manualCheckCmd.Flags().BoolVar(&checkForce, "force", false, "ignore the minimum check interval")
	manualCheckCmd.Flags().BoolVar(&outputJSON, "json", false, "print the result as JSON")
	manualStatusCmd.Flags().BoolVar(&outputJSON, "json", false, "print the status as JSON")
	manualHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of entries to show (0 for all)")
	manualWatchCmd.Flags().DurationVar(&watchInterval, "interval", 15*time.Minute, "how often to wake up and check")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runManualCheck(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	result := env.manual.CheckForUpdate(cmd.Context(), checkForce)

	if outputJSON {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return errors.NewGenericError("failed to write result", err)
		}
	} else {
		cmd.Println(console.DescribeResult(result))
	}

	if result.Outcome == interfaces.OutcomeFailed {
		if env.manual.ResolvePreferredSource().Available() {
			return errors.NewSyncError("manual update failed, the previous copy is still available", result.Err)
		}
		return errors.NewSyncError("manual update failed and no manual is available", result.Err)
	}
	return nil
}

func runManualStatus(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	status := env.manual.Status()
	if outputJSON {
		if err := writeJSON(cmd.OutOrStdout(), status); err != nil {
			return errors.NewGenericError("failed to write status", err)
		}
		return nil
	}

	console.WriteStatus(cmd.OutOrStdout(), status)
	return nil
}

func runManualPath(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	source := env.manual.ResolvePreferredSource()
	switch {
	case !source.Available():
		return errors.NewGenericError("no manual available, run `zt100 manual check`", nil)
	case source.Path == "":
		// Embedded in the binary; there is no file to point at
		cmd.Printf("%s (embedded, use `zt100 manual export` to extract it)\n", source.Label)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), source.Path)
	}
	return nil
}

func runManualExport(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	source := env.manual.ResolvePreferredSource()
	if !source.Available() {
		return errors.NewGenericError("no manual available, run `zt100 manual check`", nil)
	}

	rc, err := env.manual.Open(source)
	if err != nil {
		return err
	}
	defer rc.Close()

	target, err := filepath.Abs(args[0])
	if err != nil {
		return errors.NewGenericError("failed to resolve absolute path", err)
	}
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		target = filepath.Join(target, source.Name)
	}

	out, err := os.Create(target)
	if err != nil {
		return errors.NewGenericError("failed to create export file", err)
	}
	n, err := io.Copy(out, rc)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(target)
		return errors.NewGenericError("failed to export manual", err)
	}

	cmd.Printf("Exported %s to %s (%s)\n", source.Label, target, humanize.Bytes(uint64(n)))
	return nil
}

func runManualHistory(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	records, err := env.state.History(historyLimit)
	if err != nil {
		return err
	}

	console.WriteHistory(cmd.OutOrStdout(), records)
	return nil
}

func runManualWatch(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()

	cmd.Printf("Watching %s every %s (Ctrl+C to stop)\n", env.config.Manual.URL, watchInterval)
	err = env.manual.Watch(ctx, watchInterval, func(result interfaces.SyncResult) {
		if result.Outcome == interfaces.OutcomeThrottled {
			logger.Debugf("check throttled")
			return
		}
		cmd.Printf("[%s] %s\n", time.Now().Format(time.Kitchen), console.DescribeResult(result))
	})
	if err != nil && err != context.Canceled {
		return errors.NewGenericError("watch stopped", err)
	}
	return nil
}
