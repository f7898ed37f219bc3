package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kha1n3vol3/BitaxePID/internal/interfaces"
)

const shutdownTimeout = 3 * time.Second

// Server is a context-driven wrapper around http.Server.
type Server struct {
	srv *http.Server
	log interfaces.ILogger
}

func NewServer(addr string, handler http.Handler, log interfaces.ILogger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
		log: log,
	}
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()
	s.log.Infof("http server listening on %s", s.srv.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warnf("http server shutdown: %s", err)
		}
		return ctx.Err()
	}
}
