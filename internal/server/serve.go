package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"anymusic/internal/logging"
)

// Serve runs h on addr until ctx is done, then drains in-flight requests.
// ready, when non-nil, receives the bound address once listening.
func Serve(ctx context.Context, addr string, h http.Handler, ready func(addr string)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           h,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logging.LogServerStart(ln.Addr().String(), map[string]any{"kind": "devserver"})
	if ready != nil {
		ready(ln.Addr().String())
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogServerShutdown("http shutdown", err)
		return err
	}
	logging.LogServerShutdown("shutdown complete", nil)
	return nil
}
