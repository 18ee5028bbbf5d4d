// Package ws serves duels to players over websockets. A player joins with
// the match id and the join token of their seat; from then on the duel
// messages flow as JSON text frames.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ChuechTeam/CardLab-sub000/internal/config"
	"github.com/ChuechTeam/CardLab-sub000/internal/match"
)

// Server is the player-facing HTTP server.
type Server struct {
	cfg      config.WebSocketConfig
	matches  *match.Manager
	logger   *zap.Logger
	upgrader websocket.Upgrader
	hub      *Hub
}

// NewServer creates a websocket server. Run must be called for clients to
// be accepted.
func NewServer(cfg config.WebSocketConfig, matches *match.Manager, logger *zap.Logger) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	s := &Server{
		cfg:     cfg,
		matches: matches,
		logger:  logger,
		hub:     newHub(logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		EnableCompression: cfg.Compression,
		CheckOrigin:       s.checkOrigin,
	}
	return s
}

// checkOrigin allows same-origin requests when no origin is configured,
// and "*" allows every origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.cfg.AllowedOrigins) == 0 {
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

// Handler routes the player endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /duel/ws", s.serveWS)
	mux.HandleFunc("GET /matches/{id}", s.serveMatch)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// Run accepts clients until ctx is done, then disconnects all of them.
func (s *Server) Run(ctx context.Context) {
	s.hub.run(ctx)
}

// Clients is the number of connected players.
func (s *Server) Clients() int {
	return s.hub.Clients()
}

// ListenAndServe serves on the configured address until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("websocket server listening", zap.String("address", s.cfg.Address))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mt, p, err := s.matches.Join(q.Get("match"), q.Get("token"))
	if err != nil {
		switch {
		case errors.Is(err, match.ErrMatchNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, match.ErrInvalidToken), errors.Is(err, match.ErrTokenExpired):
			http.Error(w, err.Error(), http.StatusUnauthorized)
		default:
			s.logger.Error("join failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	if s.cfg.ReadLimit > 0 {
		conn.SetReadLimit(s.cfg.ReadLimit)
	}
	if s.cfg.Compression {
		conn.EnableWriteCompression(true)
	}

	client := &Client{
		conn:         conn,
		send:         make(chan []byte, s.cfg.SendBuffer),
		done:         make(chan struct{}),
		match:        mt,
		player:       p,
		logger:       s.logger.With(zap.String("match_id", mt.ID), zap.Stringer("player", p)),
		writeTimeout: s.cfg.WriteTimeout,
		pongTimeout:  s.cfg.PongTimeout,
	}
	if !s.hub.register(client) {
		client.close()
		return
	}

	go client.writePump()
	if err := mt.Duel.Connect(p, client); err != nil {
		client.logger.Info("connect refused", zap.Error(err))
		s.hub.unregister(client)
		client.close()
		return
	}
	go client.readPump(s.hub)
}

type matchView struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	PlayerNames [2]string `json:"playerNames"`
	Connected   [2]bool   `json:"connected"`
	Turn        int       `json:"turn"`
	Winner      *int      `json:"winner,omitempty"`
}

func (s *Server) serveMatch(w http.ResponseWriter, r *http.Request) {
	mt, ok := s.matches.GetMatch(r.PathValue("id"))
	if !ok {
		http.Error(w, match.ErrMatchNotFound.Error(), http.StatusNotFound)
		return
	}
	snap := mt.Snapshot()
	view := matchView{
		ID:          snap.ID,
		State:       snap.State.String(),
		PlayerNames: snap.PlayerNames,
		Connected:   snap.Connected,
		Turn:        snap.Turn,
	}
	if snap.Winner != nil {
		idx := int(*snap.Winner)
		view.Winner = &idx
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		s.logger.Debug("failed to write match", zap.Error(err))
	}
}
