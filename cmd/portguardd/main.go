package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/portguard/pkg/api"
	"github.com/cuemby/portguard/pkg/clock"
	"github.com/cuemby/portguard/pkg/config"
	"github.com/cuemby/portguard/pkg/container"
	"github.com/cuemby/portguard/pkg/log"
	"github.com/cuemby/portguard/pkg/supervisor"
	"github.com/cuemby/portguard/pkg/transport"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "portguardd",
	Short:   "portguardd monitors ports, arbitrates reservations, and detects conflicts",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"portguardd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the port monitoring and reservation daemon",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML config file (defaults applied for anything it omits)")
	serveCmd.Flags().String("containerd-socket", "", "containerd socket path; container-sourced ports are skipped if unset or unreachable")
	serveCmd.Flags().String("health-addr", "127.0.0.1:9090", "HTTP health/ready/metrics listen address")
	serveCmd.Flags().String("grpc-health-addr", "127.0.0.1:9091", "gRPC health service listen address")
	serveCmd.Flags().String("socket-path", "/var/run/portguard/portguard.sock", "Unix socket path for the outward port-operations transport")
}

func runServe(cmd *cobra.Command, args []string) error {
	api.Version = Version

	configPath, _ := cmd.Flags().GetString("config")
	containerdSocket, _ := cmd.Flags().GetString("containerd-socket")
	healthAddr, _ := cmd.Flags().GetString("health-addr")
	grpcHealthAddr, _ := cmd.Flags().GetString("grpc-health-addr")
	socketPath, _ := cmd.Flags().GetString("socket-path")

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	var runtime container.Runtime
	if containerdSocket != "" {
		rt, err := container.NewContainerdRuntime(containerdSocket)
		if err != nil {
			log.WithComponent("portguardd").Warn().Err(err).
				Msg("containerd unreachable, running in reservation-only mode")
		} else {
			runtime = rt
			defer rt.Close()
		}
	}

	sup, err := supervisor.New(cfg, clock.Real{}, runtime)
	if err != nil {
		return fmt.Errorf("create supervisor: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize supervisor: %w", err)
	}
	fmt.Println("✓ Supervisor initialized")

	healthServer := api.NewHealthServer(sup)
	errCh := make(chan error, 3)
	go func() {
		if err := healthServer.Start(healthAddr); err != nil {
			errCh <- fmt.Errorf("health server error: %w", err)
		}
	}()
	fmt.Printf("✓ Health endpoints: http://%s/health, /ready, /metrics\n", healthAddr)

	grpcHealth := api.NewGRPCHealthServer()
	go func() {
		if err := grpcHealth.Start(grpcHealthAddr); err != nil {
			errCh <- fmt.Errorf("grpc health server error: %w", err)
		}
	}()
	fmt.Printf("✓ gRPC health service: %s\n", grpcHealthAddr)

	outward := transport.New(sup)
	go func() {
		if err := outward.Start(socketPath); err != nil {
			errCh <- fmt.Errorf("outward transport error: %w", err)
		}
	}()
	fmt.Printf("✓ Outward operations transport: %s\n", socketPath)

	// Give the listeners a moment to bind before declaring readiness.
	time.Sleep(200 * time.Millisecond)
	grpcHealth.SetServing()

	fmt.Println()
	fmt.Println("portguardd is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}

	grpcHealth.SetNotServing()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := outward.Stop(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "outward transport shutdown error: %v\n", err)
	}
	grpcHealth.Stop()

	if err := sup.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("supervisor shutdown: %w", err)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}
