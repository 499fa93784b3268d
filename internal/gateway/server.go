// Package gateway serves the plan, build and generate operations over HTTP
// and streams lifecycle events to websocket subscribers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/agentgen/internal/build"
	"github.com/soyeahso/agentgen/internal/config"
	"github.com/soyeahso/agentgen/internal/hooks"
	"github.com/soyeahso/agentgen/internal/logging"
	"github.com/soyeahso/agentgen/internal/pipeline"
	"github.com/soyeahso/agentgen/internal/planner"
	"github.com/soyeahso/agentgen/internal/store"
	"github.com/soyeahso/agentgen/internal/version"
)

var ErrClientClosed = errors.New("client connection closed")

const (
	maxBodyBytes    = 4 * 1024 * 1024
	shutdownTimeout = 10 * time.Second
)

// Planner produces build plans.
type Planner interface {
	Plan(ctx context.Context, req planner.Request) (*build.Plan, error)
}

// Builder executes build plans.
type Builder interface {
	Build(ctx context.Context, p *build.Plan) (*build.Summary, error)
}

// Generator turns requirements into artifacts.
type Generator interface {
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// History reads recorded build runs.
type History interface {
	Get(ctx context.Context, id string) (*store.BuildRun, error)
	List(ctx context.Context, limit int) ([]store.BuildRun, error)
}

// Server is the agentgen HTTP + websocket server.
type Server struct {
	cfg      config.Config
	token    string
	log      *logging.Logger
	clients  *ClientRegistry
	eventSeq atomic.Int64

	planner   Planner
	builder   Builder
	generator Generator
	history   History
	hooks     *hooks.Manager

	mu          sync.RWMutex
	addr        string
	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// authRateLimiter tracks failed auth attempts per IP to slow down brute-force attempts.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000 // max tracked IPs to bound memory
)

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{failures: make(map[string][]time.Time), now: time.Now}
}

// cleanup removes stale entries every interval until ctx is done.
func (l *authRateLimiter) cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		l.mu.Lock()
		cutoff := l.now().Add(-authRateWindow)
		for ip, times := range l.failures {
			if recent := pruneBefore(times, cutoff); len(recent) == 0 {
				delete(l.failures, ip)
			} else {
				l.failures[ip] = recent
			}
		}
		l.mu.Unlock()
	}
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	filtered := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func remoteHost(remoteAddr string) string {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		return remoteAddr
	}
	return host
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	host := remoteHost(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := pruneBefore(l.failures[host], l.now().Add(-authRateWindow))
	if len(recent) == 0 {
		delete(l.failures, host)
		return true
	}
	l.failures[host] = recent
	return len(recent) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := remoteHost(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.failures[host]; !exists && len(l.failures) >= authRateMaxIPs {
		var oldestIP string
		var oldestTime time.Time
		for ip, times := range l.failures {
			if len(times) > 0 && (oldestIP == "" || times[0].Before(oldestTime)) {
				oldestIP = ip
				oldestTime = times[0]
			}
		}
		if oldestIP != "" {
			delete(l.failures, oldestIP)
		}
	}

	l.failures[host] = append(l.failures[host], l.now())
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithPlanner enables POST /plan.
func WithPlanner(p Planner) ServerOption {
	return func(s *Server) { s.planner = p }
}

// WithBuilder enables POST /build.
func WithBuilder(b Builder) ServerOption {
	return func(s *Server) { s.builder = b }
}

// WithGenerator enables POST /generate.
func WithGenerator(g Generator) ServerOption {
	return func(s *Server) { s.generator = g }
}

// WithHistory enables GET /builds.
func WithHistory(h History) ServerOption {
	return func(s *Server) { s.history = h }
}

// WithHooks sets the hook manager. Every event it emits is forwarded to
// /ws/events subscribers.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// New creates a server.
func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		token:       ResolveToken(cfg.Server),
		log:         log.Sub("gateway"),
		clients:     NewClientRegistry(log.Sub("subscribers")),
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Server.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.hooks != nil {
		s.hooks.OnAll("gateway-broadcast", s.broadcast)
	}
	return s
}

// checkWebSocketOrigin returns a function that validates websocket Origin
// headers. Requests without an Origin (non-browser clients) are allowed.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowed)
	}
}

// broadcast forwards a hook event to every subscriber.
func (s *Server) broadcast(_ context.Context, p hooks.Payload) error {
	if s.clients.Count() == 0 {
		return nil
	}
	s.clients.Broadcast(NewEvent(p, s.eventSeq.Add(1)))
	return nil
}

// Handler returns the full handler chain: routes, auth, then the
// request-id, CORS and logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	h := authMiddleware(mux, s.token, s.authLimiter, s.log)
	return withMiddleware(h, s.log, s.cfg.Server.AllowedOrigins)
}

// Start listens on the configured host and port and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.startedAt = time.Now()
	s.mu.Unlock()

	go s.authLimiter.cleanup(ctx, time.Minute)

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Bool("auth", s.token != "").
		Bool("history", s.history != nil).
		Msg("server starting")
	if s.token == "" && s.cfg.Server.Host != "127.0.0.1" && s.cfg.Server.Host != "localhost" {
		s.log.Warn().Msg("no bearer token configured; the API is open to anyone who can reach it")
	}

	s.hooks.EmitAsync(ctx, hooks.EventServerStart, map[string]any{
		"addr": ln.Addr().String(),
	})

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down server")
	s.hooks.Emit(context.WithoutCancel(ctx), hooks.EventServerStop, map[string]any{
		"addr": ln.Addr().String(),
	})

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not closed by Shutdown.
	s.clients.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the listen address, or an empty string before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Uptime reports how long the server has been serving.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

// handleEvents upgrades to a websocket and streams hook events until the
// subscriber disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(4096)

	client := NewClient(conn, r.RemoteAddr)
	if err := client.Send(newHello(client.ConnID, version.Version)); err != nil {
		s.log.Warn().Err(err).Msg("sending hello")
		client.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	// Subscribers only listen; reading drives ping/close handling.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("subscriber read ended")
			}
			return
		}
	}
}
