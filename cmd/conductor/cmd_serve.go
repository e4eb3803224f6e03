package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conductor/internal/config"
	"conductor/internal/httpapi"
	"conductor/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var noWatch bool

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve POST /v1/turn over HTTP",
	Long: `Starts the HTTP API and watches the config file for changes.

The turn budget, tool round limit, cache TTL, log level and model settings are
applied on reload. The listen address, analysis endpoint and trace database
are read once at startup.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload the config file on change")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpapi.NewServer(a.handler, httpapi.Options{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logging.Boot("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})

	if !noWatch {
		w, err := config.NewWatcher(configPath, cfg)
		if err != nil {
			return err
		}
		w.Subscribe(func(c *config.Config) { a.reload(gctx, c) })
		g.Go(func() error { return w.Run(gctx) })
	}

	return g.Wait()
}
