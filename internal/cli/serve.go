package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(flags *rootFlags, opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API, metrics and health endpoints",
		Long: `Serve the timetrack HTTP API. Callers authenticate every /api/v1 request with their own
GitHub token in the Authorization header.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(flags, opts, false)
			if err != nil {
				return err
			}
			defer s.close()
			return runServer(cmd.Context(), s, nil)
		},
	}
}

// runServer serves until ctx is canceled. A non-nil ready channel receives the bound address.
func runServer(ctx context.Context, s *session, ready chan<- string) error {
	handler, err := s.runtime.Handler()
	if err != nil {
		return fmt.Errorf("build http handler: %w", err)
	}

	listener, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.ListenAddr, err)
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
	}

	s.runtime.Start(ctx)

	serverErrCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", zap.String("addr", listener.Addr().String()))
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()
	if ready != nil {
		ready <- listener.Addr().String()
	}

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}
