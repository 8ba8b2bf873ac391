package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/regioncore/internal/plugin"
)

// minStallWindow is the shortest time without a tick before the node is
// reported not ready.
const minStallWindow = time.Second

// admin serves metrics, health checks and a plugin listing.
type admin struct {
	s       *Server
	handler http.Handler
}

func newAdmin(s *Server) *admin {
	health := healthcheck.NewMetricsHandler(s.registry, "regioncore")
	health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(100000))
	health.AddReadinessCheck("tick-loop", s.tickCheck())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)
	mux.HandleFunc("/plugins", s.pluginsEndpoint)

	return &admin{s: s, handler: mux}
}

// Run serves on addr until ctx is done.
func (a *admin) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.s.logger.Info("admin listening", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin shutdown: %w", err)
		}
		return nil
	}
}

// tickCheck fails until the first tick and whenever the loop has not ticked
// for several intervals.
func (s *Server) tickCheck() healthcheck.Check {
	window := 10 * s.cfg.Server.TickInterval()
	if window < minStallWindow {
		window = minStallWindow
	}
	return func() error {
		last := s.manager.LastTick()
		if last.IsZero() {
			return errors.New("no tick yet")
		}
		if since := time.Since(last); since > window {
			return fmt.Errorf("last tick %s ago", since.Round(time.Millisecond))
		}
		return nil
	}
}

type pluginView struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	Namespace     string    `json:"namespace"`
	State         string    `json:"state"`
	Status        string    `json:"status"`
	Subscriptions int       `json:"subscriptions"`
	Ticks         uint64    `json:"ticks"`
	Handled       uint64    `json:"handled"`
	Dropped       uint64    `json:"dropped"`
	RegisteredAt  time.Time `json:"registered_at"`
	Crash         string    `json:"crash,omitempty"`
}

func viewOf(r plugin.Report) pluginView {
	v := pluginView{
		ID:            r.ID.String(),
		Name:          r.Name,
		Version:       r.Version.String(),
		Namespace:     r.Namespace.String(),
		State:         r.State.String(),
		Status:        string(r.Status),
		Subscriptions: r.Subscriptions,
		Ticks:         r.Ticks,
		Handled:       r.Handled,
		Dropped:       r.Dropped,
		RegisteredAt:  r.RegisteredAt,
	}
	if r.Crash != nil {
		v.Crash = r.Crash.Error()
	}
	return v
}

func (s *Server) pluginsEndpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	reports := s.manager.List()
	views := make([]pluginView, 0, len(reports))
	for _, rep := range reports {
		views = append(views, viewOf(rep))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		s.logger.Warn("plugins endpoint write failed", "error", err)
	}
}
