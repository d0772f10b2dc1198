package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"carelink-ws-server/internal/auth"
	"carelink-ws-server/internal/config"
	"carelink-ws-server/internal/dispatch"
	"carelink-ws-server/internal/metrics"
	"carelink-ws-server/internal/notify"
	"carelink-ws-server/internal/presence"
	"carelink-ws-server/internal/rooms"
	"carelink-ws-server/internal/store"
	"carelink-ws-server/internal/threshold"
	"carelink-ws-server/internal/types"
	ws "carelink-ws-server/pkg/websocket"
)

// brokerHealth is implemented by notifiers backed by a broker connection.
type brokerHealth interface {
	IsConnected() bool
}

// Server wires the authenticator, presence registry, room router and event
// dispatcher behind a single HTTP listener.
type Server struct {
	cfg        config.Config
	logger     *zap.Logger
	httpServer *http.Server
	mux        *http.ServeMux
	upgrader   websocket.Upgrader

	authn      *auth.Authenticator
	tokens     *auth.TokenManager
	registry   *presence.Registry
	router     *rooms.Router
	dispatcher *dispatch.Dispatcher
	notifier   notify.Notifier
	metrics    *metrics.Registry
	sampler    *metrics.SystemSampler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(
	cfg config.Config,
	logger *zap.Logger,
	st store.Store,
	notifier notify.Notifier,
	m *metrics.Registry,
) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	router := rooms.NewRouter(m, logger)
	registry := presence.NewRegistry(router, logger)
	engine := threshold.NewEngine(cfg.Thresholds)
	dispatcher := dispatch.NewDispatcher(st, router, engine, notifier, m, logger)

	s := &Server{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.WebSocket.ReadBufferSize,
			WriteBufferSize:   cfg.WebSocket.WriteBufferSize,
			EnableCompression: cfg.WebSocket.EnableCompression,
			CheckOrigin:       func(r *http.Request) bool { return true },
		},
		authn:      auth.NewAuthenticator(tokens, st, logger),
		tokens:     tokens,
		registry:   registry,
		router:     router,
		dispatcher: dispatcher,
		notifier:   notifier,
		metrics:    m,
		sampler:    metrics.NewSystemSampler(),
		ctx:        ctx,
		cancel:     cancel,
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc(cfg.WebSocket.Path, s.handleWebSocket)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if cfg.Metrics.Enabled {
		s.mux.Handle(cfg.Metrics.Endpoint, m.Handler())
	}
	if cfg.Auth.AllowDevToken {
		s.mux.HandleFunc("/auth/token", s.handleDevToken)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// Handler exposes the route table. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Registry exposes presence state. Used by tests and the health endpoint.
func (s *Server) Registry() *presence.Registry {
	return s.registry
}

// handleWebSocket runs the connection state machine: authenticate, admit
// into presence and default rooms, then hand the socket to its pumps.
// Authentication failures terminate the attempt before any presence or
// room state is touched.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Server.HandshakeTimeout)
	defer cancel()

	principal, err := s.authn.Authenticate(ctx, r)
	if err != nil {
		s.metrics.AuthFailures.Inc()
		s.logger.Warn("connection rejected", zap.Error(err))
		switch {
		case errors.Is(err, auth.ErrInactiveAccount):
			http.Error(w, "Forbidden", http.StatusForbidden)
		default:
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}
		return
	}

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := ws.NewConn(sock, principal, ws.Options{
		SendBufferSize: s.cfg.WebSocket.SendChannelSize,
		MaxMessageSize: s.cfg.WebSocket.MaxMessageSize,
	}, s.logger)

	s.registry.Register(principal, conn)
	s.metrics.ActiveConnections.Inc()

	ready, err := json.Marshal(types.NewOutbound(types.EventConnectionReady, types.ConnectionReadyPayload{
		PrincipalID: principal.ID,
		Role:        principal.Role,
		ServerTime:  time.Now().UnixMilli(),
	}))
	if err == nil {
		conn.Send(ready)
	}

	go conn.WritePump()
	go conn.ReadPump(
		func(message []byte) {
			s.dispatcher.HandleMessage(s.ctx, conn, message)
		},
		func() {
			s.registry.Unregister(conn)
			s.metrics.ActiveConnections.Dec()
		},
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"presence": map[string]any{
			"online": s.registry.CountOnline(),
		},
		"system": s.sampler.Snapshot(),
	}
	if b, ok := s.notifier.(brokerHealth); ok {
		health["notifier"] = map[string]any{"connected": b.IsConnected()}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleDevToken mints a short-lived credential. Only mounted when
// auth.allow_dev_token is set; never enable outside development.
func (s *Server) handleDevToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	role := types.Role(r.URL.Query().Get("role"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	switch role {
	case types.RolePatient, types.RoleDoctor, types.RoleAdmin:
	default:
		http.Error(w, "role must be patient, doctor or admin", http.StatusBadRequest)
		return
	}

	token, err := s.tokens.Generate(id, role)
	if err != nil {
		s.logger.Error("token generation failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// Start runs the listener and blocks until a shutdown signal arrives.
func (s *Server) Start() error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.sampler.Update()
			}
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()

	s.waitForShutdown()
	return nil
}

func (s *Server) waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	s.logger.Info("shutting down", zap.String("signal", sig.String()))

	s.Shutdown()
}

// Shutdown drains the HTTP server, closes every live connection and waits
// for background goroutines to finish.
func (s *Server) Shutdown() {
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown error", zap.Error(err))
	}

	s.registry.Shutdown()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("shutdown complete")
	case <-ctx.Done():
		s.logger.Warn("shutdown timeout")
	}
}
