package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/codedrop/codedrop/internal/drop"
	"github.com/codedrop/codedrop/internal/metrics"
	"github.com/codedrop/codedrop/internal/signaling"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// Browser peers are served from other origins.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server is the HTTP surface of the broker.
type Server struct {
	broker  *signaling.Broker
	drops   *drop.Service
	metrics *metrics.Metrics
	fetches *ipLimiter
	uploads *ipLimiter
}

// New wires the handlers. drops may be nil to disable the drop endpoints.
func New(broker *signaling.Broker, drops *drop.Service, m *metrics.Metrics) *Server {
	return &Server{
		broker:  broker,
		drops:   drops,
		metrics: m,
		fetches: newIPLimiter(fetchRate, fetchBurst),
		uploads: newIPLimiter(uploadRate, uploadBurst),
	}
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthCheckHandler)
	mux.Handle("GET /metrics", s.metrics)
	mux.HandleFunc("/ws", ServeWs(s.broker))
	mux.HandleFunc("/", ServeWs(s.broker))

	if s.drops != nil {
		mux.HandleFunc("POST /drop", s.limit(s.handleDropPut))
		mux.HandleFunc("GET /drop/{code}", s.limit(s.handleDropGet))
	}
	return mux
}

// Health Check endpoint
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// ServeWs returns an http.HandlerFunc that upgrades the request and hands
// the connection to the broker.
func ServeWs(broker *signaling.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !websocket.IsWebSocketUpgrade(r) {
			if r.URL.Path == "/" {
				w.Write([]byte("codedrop signaling server"))
				return
			}
			http.Error(w, "websocket upgrade required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
			return
		}

		broker.Attach(conn)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, drop.ErrorResponse{Error: msg})
}
