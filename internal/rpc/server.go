// Package rpc exposes the identity and license command surface to the
// desktop shell as JSON-RPC 2.0 over localhost HTTP, plus /healthz and
// /metrics. The transport is deliberately thin: every method maps onto one
// synchronous service call.
package rpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"usenet-sync/go-core/internal/identity"
	"usenet-sync/go-core/internal/license"
	"usenet-sync/go-core/internal/metrics"
	"usenet-sync/go-core/internal/platform/ratelimiter"
)

const DefaultAddr = "127.0.0.1:8765"

const tokenHeader = "X-USN-RPC-Token"

// Service is what the transport needs from the application root.
type Service interface {
	InitializeIdentity() (identity.Identity, bool, error)
	CurrentIdentity() (identity.Identity, error)
	ExportPublicIdentity() (string, error)
	CreateProof() (identity.Proof, error)
	DestroyIdentity() error
	ActivateTrial() (license.License, error)
	ActivateFull(token string) (license.License, error)
	CheckLicense() (bool, *license.License)
	DeactivateLicense() error
	GenerateLicenseKey(typ license.Type, durationDays *int64, maxActivations uint32) (string, error)
	RemainingDays(lic license.License) (int64, bool)
}

type Server struct {
	httpServer *http.Server
	service    Service
	token      string
	limiter    *ratelimiter.MapLimiter
	stats      *metrics.Metrics
}

type Options struct {
	Addr      string
	Token     string
	RateRPS   float64
	RateBurst int
}

func NewServer(svc Service, stats *metrics.Metrics, opts Options) *Server {
	addr := opts.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		service: svc,
		token:   strings.TrimSpace(opts.Token),
		limiter: ratelimiter.New(opts.RateRPS, opts.RateBurst, 0),
		stats:   stats,
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/rpc", s.handleRPC)
	if stats != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(stats.Registry, promhttp.HandlerOpts{}))
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) authorize(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	if header := strings.TrimSpace(r.Header.Get(tokenHeader)); header == s.token {
		return true
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimSpace(auth[len("Bearer "):]) == s.token
}

func callerKey(r *http.Request, token string) string {
	if token != "" {
		return "token:" + token
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil || host == "" {
		return "ip:unknown"
	}
	return "ip:" + host
}
