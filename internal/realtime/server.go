package realtime

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server exposes the Hub over HTTP: a websocket upgrade endpoint plus a
// health check, wrapped in permissive CORS for browser clients.
type Server struct {
	hub    *Hub
	router *mux.Router
	logger *zap.Logger
}

// NewServer wires a Hub behind a mux router.
func NewServer(hub *Hub, logger *zap.Logger) *Server {
	s := &Server{hub: hub, router: mux.NewRouter(), logger: logger}
	s.router.HandleFunc("/ws", s.hub.ServeWS)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"success":true,"data":{"status":"ok"}}`))
}

// ListenAndServe starts the hub's loop and the HTTP listener. Blocks until
// the listener returns an error.
func (s *Server) ListenAndServe(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	s.logger.Info("realtime fabric listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}
