package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"seedlink/internal/config"
	"seedlink/internal/server"
)

const (
	shutdownTimeout = 10 * time.Second
	// writeMargin leaves room to encode the error body after a lookup hits
	// its deadline.
	writeMargin = 15 * time.Second
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP link resolver",
		Long: `Serve answers GET /getlink?url=<link> with the resolved file page and its
download links. PORT in the environment overrides --addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if env := os.Getenv("PORT"); env != "" {
				cfg.Addr = ":" + env
			}
			svc, err := newService(cfg, logger)
			if err != nil {
				return err
			}
			handler := server.New(server.Config{
				Service:        svc,
				Logger:         logger,
				RequestTimeout: cfg.RequestTimeout.Std(),
				DebugHTMLLimit: cfg.DebugHTMLLimit,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg.Addr, writeTimeout(cfg.RequestTimeout.Std()), handler, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.DefaultAddr, "listen address, e.g. :10000 or 0.0.0.0:10000")
	return cmd
}

// writeTimeout keeps the response deadline behind the lookup deadline so a
// timed-out lookup still gets its JSON body out.
func writeTimeout(request time.Duration) time.Duration {
	if request <= 0 {
		return 0
	}
	return request + writeMargin
}

// serve runs handler on addr until ctx is done, then drains in-flight
// requests. Requests still running after shutdownTimeout are cancelled,
// which tears down their browsers.
func serve(ctx context.Context, addr string, write time.Duration, handler http.Handler, logger zerolog.Logger) error {
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      write,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          log.New(logger.With().Str("component", "http").Logger(), "", 0),
		BaseContext:       func(net.Listener) context.Context { return base },
		ConnState: func(c net.Conn, s http.ConnState) {
			logger.Trace().Str("state", s.String()).Stringer("remote", c.RemoteAddr()).Msg("conn")
		},
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	logger.Info().Str("addr", ln.Addr().String()).Msg("listening")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		cancelBase()
		_ = srv.Close()
		logger.Warn().Err(err).Msg("forced shutdown")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
