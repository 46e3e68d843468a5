package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"mcpbridge/internal/config"
	"mcpbridge/internal/events"
	"mcpbridge/internal/formatting"
	"mcpbridge/internal/lifecycle"
	"mcpbridge/pkg/logging"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// shutdownTimeout bounds how long shutdown may spend stopping instances.
const shutdownTimeout = 2 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge and manage backend server instances",
	Long: `Starts the bridge: loads the server definitions from the configuration
directory, runs the scoped instance managers for the global, user and session
lifecycle modes, and keeps the definitions in sync with the configuration
directory while running.

Background tasks started alongside:
  - the cleanup sweeper, evicting idle and over-age instances
  - the instance monitor, probing liveness and sampling memory usage
  - the configuration watcher, reloading server definitions on change

The process runs until SIGINT or SIGTERM, then stops every managed instance
before exiting. SIGUSR1 dumps the live instance table and the aggregated
metrics to stderr. When running under systemd, readiness and stopping are
signalled via sd_notify.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	path := effectiveConfigPath()

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	} else if cfg.Bridge.LogLevel != "" {
		level = logging.ParseLevel(cfg.Bridge.LogLevel)
	}
	logging.Init(level, os.Stderr)

	defs, err := config.LoadServerDefinitions(path)
	if err != nil {
		return fmt.Errorf("failed to load server definitions: %w", err)
	}
	store := config.NewStore(defs)

	eventGen := events.NewGenerator()
	eventGen.Subscribe(logEvent)

	coordinator := lifecycle.NewCoordinator(store, lifecycle.Options{
		Policy:          cfg.Cleanup,
		Events:          eventGen,
		MonitorInterval: time.Duration(cfg.Bridge.MonitorIntervalSeconds) * time.Second,
	})
	coordinator.StartCleanupTask()
	coordinator.StartMonitoring()

	watcher := config.NewWatcher(path, store)
	if err := watcher.Start(); err != nil {
		logging.Warn("Serve", "Configuration watching disabled: %v", err)
	}

	notify(daemon.SdNotifyReady)
	logging.Info("Serve", "mcpbridge ready with %d server definitions (config %s)", len(defs), path)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)

	for done := false; !done; {
		select {
		case <-usr1:
			dumpStatus(coordinator, os.Stderr)
		case <-sigCtx.Done():
			done = true
		}
	}

	notify(daemon.SdNotifyStopping)
	logging.Info("Serve", "Shutting down")

	watcher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown finished with errors: %w", err)
	}
	return nil
}

// dumpStatus renders the live instance table and the aggregated metrics.
// Triggered by SIGUSR1 on the running bridge.
func dumpStatus(c *lifecycle.Coordinator, w io.Writer) {
	formatting.RenderInstances(w, c.ListInstances(nil))
	formatting.RenderMetrics(w, c.Metrics())
}

// notify reports state to systemd when running under it; everywhere else the
// call is a silent no-op.
func notify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		logging.Debug("Serve", "sd_notify failed: %v", err)
	}
}

// logEvent writes lifecycle events into the structured log.
func logEvent(e events.Event) {
	data := e.Data
	switch e.Type {
	case events.EventTypeWarning:
		logging.Warn("Event", "%s server=%s instance=%s mode=%s error=%s",
			e.Reason, data.ServerName, data.InstanceID, data.Mode, data.Error)
	default:
		if e.Reason == events.ReasonCleanupCompleted && data.RemovedCount == 0 {
			return
		}
		logging.Info("Event", "%s server=%s instance=%s mode=%s removed=%d",
			e.Reason, data.ServerName, data.InstanceID, data.Mode, data.RemovedCount)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
}
