package api

import (
	"mol-collab/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	// Learning: Middleware runs in order - tracing first, then recovery, then CORS
	r.Use(middleware.TracingMiddleware)       // Add tracing spans to all requests
	r.Use(middleware.ErrorRecoveryMiddleware) // Catch panics
	r.Use(middleware.CORSMiddleware)          // Handle CORS

	// API routes
	api := r.PathPrefix("/api").Subrouter()

	// Room endpoints
	api.HandleFunc("/rooms", h.ListRooms).Methods("GET")

	// Recording control: transport-level mirror of the room commands
	api.HandleFunc("/rooms/{id}/recording/start", h.StartRecording).Methods("POST")
	api.HandleFunc("/rooms/{id}/recording/stop", h.StopRecording).Methods("POST")

	// Recording retrieval
	api.HandleFunc("/recordings", h.ListRecordings).Methods("GET")
	api.HandleFunc("/recordings/{id}", h.GetRecording).Methods("GET")
	api.HandleFunc("/recordings/{id}/export", h.ExportRecording).Methods("GET")

	// Health check endpoint
	api.HandleFunc("/health", h.Health).Methods("GET")

	// WebSocket route: handshake happens inside, after the upgrade
	r.HandleFunc("/ws", h.HandleWebSocket)

	return r
}
