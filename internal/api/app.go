package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/jmoretti/go-liveroom/internal/auth"
	"github.com/jmoretti/go-liveroom/internal/config"
	"github.com/jmoretti/go-liveroom/internal/database"
	"github.com/jmoretti/go-liveroom/internal/server"
)

type LiveRoomApp struct {
	log            *log.Logger
	db             database.LiveRoomRepository
	mux            *http.Server
	ls             *server.LiveServer
	tokens         *auth.JwtTokenService
	allowedOrigins []string
}

func NewLiveRoomApp(mux *http.ServeMux, logger *log.Logger, ls *server.LiveServer, db database.LiveRoomRepository, tokens *auth.JwtTokenService, cfg *config.Config) *LiveRoomApp {
	s := &LiveRoomApp{
		log:            logger,
		db:             db,
		ls:             ls,
		tokens:         tokens,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.Handle("GET /api/gifts", s.authMiddleware(s.listGifts))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("GET /api/online", s.authMiddleware(s.online))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *LiveRoomApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *LiveRoomApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
