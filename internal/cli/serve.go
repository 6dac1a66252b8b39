package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mindrian/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Mindrian gateway server",
		Long: `Start the Mindrian gateway server.

This command starts the HTTP gateway that provides:
- Streaming run endpoints (server-sent events)
- Tool confirmation over REST and WebSocket
- Session, run and retention inspection endpoints

The server listens on the configured host and port (default: 127.0.0.1:8080).`,
		Example: `  # Start server with default configuration
  mindrian serve

  # Start server with custom port
  mindrian serve --port 9090

  # Start server with verbose logging
  mindrian serve --verbose`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().String("host", "", "host to bind to (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	cfg := cliCtx.Config
	log := cliCtx.Log()

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Gateway.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Gateway.Host = host
	}

	log.Info().Msg("Starting Mindrian server...")

	srv, err := server.NewServer(server.ServerConfig{
		Config:     cfg,
		ConfigPath: cliCtx.ConfigPath,
		Version:    Version,
		Logger:     *log,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		log.Info().Msg("Shutting down server...")
	case err := <-srv.ErrorChan():
		if err != nil {
			log.Error().Err(err).Msg("Server error")
			_ = srv.Stop()
			return err
		}
	}

	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		return err
	}
	return nil
}
