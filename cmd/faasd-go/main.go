package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/faas-containerd/faasd-go/pkg/api"
	"github.com/faas-containerd/faasd-go/pkg/cni"
	"github.com/faas-containerd/faasd-go/pkg/log"
	"github.com/faas-containerd/faasd-go/pkg/namespace"
	"github.com/faas-containerd/faasd-go/pkg/orchestrator"
	"github.com/faas-containerd/faasd-go/pkg/runtime"
	"github.com/faas-containerd/faasd-go/pkg/store"
)

var (
	// Version information (set via ldflags during build).
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "faasd-go",
	Short:   "faasd-go is a containerd-backed control plane for OpenFaaS functions",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("faasd-go version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	serveCmd.Flags().String("containerd-socket", runtime.DefaultSocketPath, "Runtime Daemon (containerd) socket path")
	serveCmd.Flags().String("listen-addr", "0.0.0.0:8080", "HTTP API listen address")
	serveCmd.Flags().String("data-dir", "/var/lib/faasd-go", "Data directory for the endpoint index")

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
	Short: "Run the faasd-go HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		socket, _ := cmd.Flags().GetString("containerd-socket")
		if env := os.Getenv("SOCKET_PATH"); env != "" && !cmd.Flags().Changed("containerd-socket") {
			socket = env
		}
		listenAddr, _ := cmd.Flags().GetString("listen-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir %s: %w", dataDir, err)
		}

		rt, err := runtime.NewClient(socket)
		if err != nil {
			return fmt.Errorf("connect to runtime daemon: %w", err)
		}
		defer rt.Close()

		index, err := store.Open(dataDir)
		if err != nil {
			return fmt.Errorf("open endpoint index: %w", err)
		}
		defer index.Close()

		cniSvc := cni.New()
		nsSvc := namespace.New(rt)
		orch := orchestrator.New(rt, cniSvc, nsSvc, index)

		server := api.New(listenAddr, orch)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.ListenAndServe()
		}()

		log.Logger.Info().Str("addr", listenAddr).Str("containerd_socket", socket).Msg("faasd-go serving")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

		select {
		case <-sigCh:
			log.Logger.Info().Msg("shutting down")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("api server error: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}
