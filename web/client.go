package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mbocsi/chainlight/services"
)

// WebClient serves the HTTP control API and the live strip viewer.
type WebClient struct {
	services      *services.ServiceContainer
	addr          string
	frameInterval time.Duration

	mu      sync.Mutex
	server  *http.Server
	viewers map[string]struct{}
}

func NewWebClient(serviceContainer *services.ServiceContainer, addr string) *WebClient {
	return &WebClient{
		services:      serviceContainer,
		addr:          addr,
		frameInterval: 50 * time.Millisecond,
		viewers:       make(map[string]struct{}),
	}
}

// Routes returns the HTTP routes for the control API
func (w *WebClient) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/nodes", w.HandleNodes)
	r.Get("/api/nodes/{index}", w.HandleNodeDetail)
	r.Get("/api/nodes/{index}/frame", w.HandleNodeFrame)
	r.Post("/api/effects/breath", w.HandleBreath)
	r.Post("/api/effects/flicker", w.HandleFlicker)
	r.Post("/api/effects/test", w.HandleTestChain)
	r.Get("/api/presets", w.HandlePresets)
	r.Post("/api/presets/{name}", w.HandleApplyPreset)
	r.Get("/ws/strip/{index}", w.HandleStripViewer)
	return r
}

// Start serves until ctx is done.
func (w *WebClient) Start(ctx context.Context) error {
	srv := &http.Server{Addr: w.addr, Handler: w.Routes()}
	w.mu.Lock()
	w.server = srv
	w.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Web control API listening", "addr", w.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("web server failed: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		return w.Shutdown()
	}
}

func (w *WebClient) Shutdown() error {
	w.mu.Lock()
	srv := w.server
	w.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("Shutting down web control API")
	return srv.Shutdown(ctx)
}

// Viewers counts connected strip viewers.
func (w *WebClient) Viewers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.viewers)
}
