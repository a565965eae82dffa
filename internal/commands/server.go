package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	dockerclient "github.com/docker/docker/client"
	"github.com/spf13/cobra"

	"github.com/vaporform/meshgate/internal/api"
	"github.com/vaporform/meshgate/internal/deploy"
	"github.com/vaporform/meshgate/internal/discovery"
	"github.com/vaporform/meshgate/internal/metrics"
	"github.com/vaporform/meshgate/internal/registry"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long:  `Start the HTTP API server with Echo framework`,
	RunE:  runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	store := registry.NewStore()

	// Container runtime client for endpoint discovery
	dockerHost := cfg.Discovery.DockerSocket
	if dockerHost != "" && dockerHost[0] == '/' {
		dockerHost = "unix://" + dockerHost
	}
	runtime, err := dockerclient.NewClientWithOpts(
		dockerclient.WithHost(dockerHost),
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return fmt.Errorf("failed to create Docker client: %w", err)
	}
	defer runtime.Close()

	resolver := discovery.NewResolver(runtime)
	prober := discovery.NewProber(store)
	prober.SetDefaults(cfg.Discovery.ProbeInterval, cfg.Discovery.ProbeTimeout)

	// Without a control-plane URL deploys run in dry-run mode
	var applier deploy.Applier = deploy.LogApplier{}
	if cfg.Deploy.ControlPlaneURL != "" {
		applier = deploy.NewControlPlaneApplier(cfg.Deploy.ControlPlaneURL, cfg.Deploy.ApplyTimeout)
	}

	hub := api.NewHub()
	dispatcher := deploy.NewDispatcher(store, applier, cfg.Deploy.Timeout,
		deploy.WithMetrics(metrics.Recorder{}),
		deploy.WithStatusHook(api.StatusEventHook(hub)),
	)

	server := api.New(cfg, store, dispatcher, resolver, prober, hub)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		fmt.Println("\nShutdown signal received")

		// Create shutdown context with timeout
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			cfg.Server.ShutdownTimeout,
		)
		defer cancel()

		// Graceful shutdown: stop accepting requests, then drain health
		// probes and in-flight deploys
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		prober.Shutdown()
		dispatcher.Wait()

		return nil

	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}
