// Package console runs the interactive zt100 prompt.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/k4lls/zt100/internal/errors"
	"github.com/k4lls/zt100/internal/interfaces"
)

const helpText = `Commands:
  check     check for a newer manual (honours the minimum interval)
  check!    check for a newer manual now
  status    show cache and sync state
  source    show which copy of the manual would be opened
  device    probe the device control panel
  help      show this help
  exit      leave the console`

// Console dispatches prompt commands to the manual and device managers
type Console struct {
	manual      interfaces.ManualManager
	device      interfaces.DeviceManager
	out         io.Writer
	historyFile string
	spinner     bool
}

// New creates a console writing to out. device may be nil.
func New(manual interfaces.ManualManager, device interfaces.DeviceManager, out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{
		manual:      manual,
		device:      device,
		out:         out,
		historyFile: filepath.Join(os.TempDir(), ".zt100_history"),
	}
}

// Execute runs one command line. It reports whether the console should exit.
func (c *Console) Execute(ctx context.Context, line string) (bool, error) {
	switch command := strings.ToLower(strings.TrimSpace(line)); command {
	case "":
		return false, nil
	case "exit", "quit":
		return true, nil
	case "help", "?":
		fmt.Fprintln(c.out, helpText)
	case "check", "check!":
		result := c.check(ctx, command == "check!")
		fmt.Fprintln(c.out, DescribeResult(result))
	case "status":
		WriteStatus(c.out, c.manual.Status())
	case "source":
		src := c.manual.ResolvePreferredSource()
		if src.Path != "" {
			fmt.Fprintf(c.out, "%s: %s\n", src.Label, src.Path)
		} else {
			fmt.Fprintln(c.out, src.Label)
		}
	case "device":
		if c.device == nil {
			return false, errors.NewGenericError("device probing is not configured", nil)
		}
		status, err := c.device.Status(ctx)
		if err != nil {
			return false, err
		}
		WriteDevice(c.out, status)
	default:
		return false, errors.NewGenericError(fmt.Sprintf("unknown command %q, type 'help'", command), nil)
	}
	return false, nil
}

// check runs an update check, animating a spinner while it is in flight
func (c *Console) check(ctx context.Context, force bool) interfaces.SyncResult {
	if !c.spinner {
		return c.manual.CheckForUpdate(ctx, force)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-stop:
				fmt.Fprint(c.out, "\r"+strings.Repeat(" ", 40)+"\r")
				return
			case <-ticker.C:
				fmt.Fprintf(c.out, "\r%s Checking for manual updates...", frames[i%len(frames)])
			}
		}
	}()

	result := c.manual.CheckForUpdate(ctx, force)
	close(stop)
	<-done
	return result
}

// Run reads commands from the terminal until exit, EOF or Ctrl+C
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "zt100> ",
		HistoryFile:     c.historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("check"),
			readline.PcItem("check!"),
			readline.PcItem("status"),
			readline.PcItem("source"),
			readline.PcItem("device"),
			readline.PcItem("help"),
			readline.PcItem("exit"),
		),
	})
	if err != nil {
		return errors.NewGenericError("failed to initialize readline", err)
	}
	defer rl.Close()

	c.out = rl.Stdout()
	c.spinner = true

	fmt.Fprintln(c.out, "ZT-100 companion console")
	fmt.Fprintf(c.out, "Manual: %s\n", c.manual.ResolvePreferredSource().Label)
	fmt.Fprintln(c.out, "Type 'help' for commands. Press Ctrl+C or type 'exit' to quit.")
	fmt.Fprintln(c.out)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Fprintln(c.out, "Goodbye!")
				return nil
			}
			return errors.NewGenericError("error reading input", err)
		}

		exit, err := c.Execute(ctx, line)
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			continue
		}
		if exit {
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		}
	}
}
