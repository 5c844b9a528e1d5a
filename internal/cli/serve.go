package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"freqgate/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the freqgate gateway server",
		Long: `Start the freqgate gateway server.

The server exposes the chat REST API, SSE streaming endpoints, and a
WebSocket channel, and dispatches turns to the bot controller or the
configured LLM backend.`,
		Example: `  # Start server with default configuration
  freqgate serve

  # Start server with custom port
  freqgate serve --port 8080

  # Start server with verbose logging
  freqgate serve --verbose`,
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

	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")
	if port > 0 {
		cfg.Gateway.Port = port
	}
	if host != "" {
		cfg.Gateway.Host = host
	}

	log.Info().Msg("Starting freqgate server...")

	srv, err := server.NewServer(server.ServerConfig{
		ConfigPath: cliCtx.ConfigPath,
		Version:    Version,
		Host:       host,
		Port:       port,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info().
		Str("address", fmt.Sprintf("http://%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)).
		Msg("Server started successfully")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("Shutting down server...")
	case err := <-srv.ErrorChan():
		if err != nil {
			log.Error().Err(err).Msg("Server error")
			return err
		}
	}

	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		return err
	}

	log.Info().Msg("Server stopped")
	return nil
}
