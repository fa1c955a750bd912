package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/server"
)

// ServerCmd starts the canvas server
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the canvas server",
	Long: `Serve the canvas over HTTP and WebSocket.

The root canvas is restored from storage on start. Every edit is saved in the
background when autosave is enabled, and pending saves are flushed on shutdown.`,
	RunE: runServer,
}

var (
	serverPort            int
	serverShutdownTimeout time.Duration
)

func init() {
	ServerCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Port to listen on (overrides server.port)")
	ServerCmd.Flags().DurationVar(&serverShutdownTimeout, "shutdown-timeout", 10*time.Second, "Grace period for open requests on shutdown")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Default to Info for the server
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = 1
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.InitializeWithLevel(jsonLogs, logger.VerbosityToLevel(verbosity)); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	port := cfg.GetServerPort()
	if serverPort != 0 {
		port = serverPort
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rt, err := openRuntime(ctx, cfg, runtimeOptions{autosave: true, watch: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	sess := rt.newSession(ctx)
	defer sess.Close()

	srv := server.New(sess,
		server.WithRegistry(rt.registry),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		server.WithLogger(logger.ComponentLogger("server")),
	)

	printStartupBanner(verbosity, cfg)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(port)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server stopped")
	case <-sigChan:
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")
	}

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer stop()
		err := srv.Shutdown(shutdownCtx)
		// Persist whatever autosave has not written yet.
		if saveErr := sess.SaveAll(shutdownCtx); saveErr != nil {
			err = errors.WithSecondaryError(saveErr, err)
		}
		shutdownDone <- err
	}()

	select {
	case err := <-shutdownDone:
		if err != nil {
			return errors.Wrap(err, "shutdown error")
		}
		pterm.Success.Println("Server stopped cleanly")
		return nil
	case <-sigChan:
		pterm.Warning.Println("Force shutdown - exiting immediately")
		os.Exit(1)
		return nil
	}
}
