package httpapi

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// RoomCounter reports the number of live rooms.
type RoomCounter interface {
	RoomCount() int
}

// Server routes the health probe, the websocket endpoint and the static UI.
type Server struct {
	rooms     RoomCounter
	ws        http.Handler
	staticDir string
	indexFile string
	now       func() time.Time
	logger    *zap.Logger
	router    *mux.Router
}

type Option func(*Server)

func WithStatic(dir, index string) Option {
	return func(s *Server) {
		if dir != "" {
			s.staticDir = dir
		}
		if index != "" {
			s.indexFile = index
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewServer(rooms RoomCounter, ws http.Handler, opts ...Option) *Server {
	s := &Server{
		rooms:     rooms,
		ws:        ws,
		staticDir: ".",
		indexFile: "index.html",
		now:       time.Now,
		logger:    zap.NewNop(),
		router:    mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	if s.ws != nil {
		s.router.Handle("/ws", s.ws)
	}
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet, http.MethodHead)
	s.router.PathPrefix("/").Handler(http.FileServer(dotlessFS{http.Dir(s.staticDir)})).Methods(http.MethodGet, http.MethodHead)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type healthResponse struct {
	Status    string `json:"status"`
	Rooms     int    `json:"rooms"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status:    "OK",
		Rooms:     s.rooms.RoomCount(),
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(s.staticDir, s.indexFile)
	s.logger.Debug("http_index", zap.String("remote", r.RemoteAddr))
	http.ServeFile(w, r, path)
}
