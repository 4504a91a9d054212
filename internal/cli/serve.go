package cli

import (
	"context"
	"sync"
	"time"

	"github.com/k4lls/zt100/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr     string
	serveWatch    bool
	serveInterval time.Duration

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the manual and its sync state over HTTP",
		Long: `Serve the preferred copy of the manual on a local HTTP port.

Routes:
  GET|HEAD /manual          the manual (X-Manual-Source names the copy)
  GET      /manual/status   sync state as JSON
  POST     /manual/check    run a check (?force=true to skip the interval)
  GET      /device/status   control panel reachability
  GET      /metrics         Prometheus metrics
  GET      /healthz         liveness`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default is server.addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "check for manual updates in the background")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 15*time.Minute, "background check interval")
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	addr := serveAddr
	if addr == "" {
		addr = env.config.Server.Addr
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Watch writes to the state database and must stop before env.Close
	var watcher sync.WaitGroup
	if serveWatch {
		watcher.Add(1)
		go func() {
			defer watcher.Done()
			env.manual.Watch(ctx, serveInterval, nil)
		}()
	}

	srv := server.New(env.manual, env.device, env.registry)
	cmd.Printf("Serving the ZT-100 manual on http://%s/manual (Ctrl+C to stop)\n", addr)
	err = srv.ListenAndServe(ctx, addr)

	cancel()
	watcher.Wait()
	return err
}
