package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jwillz7667/CropLens/internal/api"
	"github.com/jwillz7667/CropLens/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				cfg.Port = port
			}
			return withServices(cmd, func(s *services) error {
				srv := &api.Server{
					Store:          s.store,
					Analyzer:       s.analyze,
					Objects:        s.objects,
					ObjectsDir:     s.objects.Dir(),
					JWTSecret:      s.cfg.JWTSecret,
					AllowedOrigins: s.cfg.CORSOrigins,
				}
				if s.cfg.JWTSecret == "" {
					PrintWarning("JWT_SECRET is not set; requests are scoped by the X-Owner-Id header.")
				}
				return serve(cmd.Context(), net.JoinHostPort("", s.cfg.Port), srv.Routes())
			})
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Listen port (default: PORT or 4000)")
	return cmd
}

// serve runs the HTTP server until ctx is cancelled, then drains it.
func serve(ctx context.Context, addr string, h http.Handler) error {
	logger := utils.GetLogger()
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api listening", slog.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("api shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
