package cli

import (
	"github.com/k4lls/zt100/internal/console"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start an interactive prompt",
	Args:  cobra.NoArgs,
	RunE:  runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	return console.New(env.manual, env.device, cmd.OutOrStdout()).Run(cmd.Context())
}
