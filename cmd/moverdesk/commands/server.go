package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/moverdesk/am"
	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/logger"
	"github.com/teranos/moverdesk/server"
)

// ServerCmd starts the moverdesk HTTP API
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the moverdesk API server",
	Long:    `Launch the HTTP API used by the crew portal: job assignment, geofenced clock-in, payouts and the job calendar.`,
	RunE:    runServer,
}

var (
	serverPort     int
	serverNoBanner bool
)

func init() {
	ServerCmd.Flags().IntVar(&serverPort, "port", 0, "Listen port (overrides server.port)")
	ServerCmd.Flags().BoolVar(&serverNoBanner, "no-banner", false, "Skip the startup banner")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Default to Info for the server
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = 1
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs || logger.PreferJSON(), verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	srv, err := server.NewFromConfig(cfg, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	if !serverNoBanner && !logger.JSONOutput {
		printStartupBanner(verbosity, cfg)
	}

	// First signal drains in-flight requests; a second one exits immediately
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return errors.Wrap(err, "server stopped")
		}
		return nil
	case <-ctx.Done():
		stop()
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")
	}

	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)

	select {
	case err := <-errChan:
		if err != nil {
			return errors.Wrap(err, "shutdown error")
		}
		pterm.Success.Println("Server stopped cleanly")
		return nil
	case <-force:
		pterm.Warning.Println("Force shutdown - exiting immediately")
		os.Exit(1)
		return nil
	}
}
