// Package httptransport builds the HTTP server around the API router.
package httptransport

import (
	"net/http"
	"time"

	"github.com/rs/cors"
)

// ServerConfig contains tunables for the HTTP server.
type ServerConfig struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

// NewServer creates an *http.Server serving handler behind the CORS policy.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           WithCORS(cfg.AllowedOrigins, handler),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// WithCORS answers browser preflights for the allowed origins. Preflight
// requests never reach handler, so authentication does not see them.
func WithCORS(origins []string, handler http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           600,
	}).Handler(handler)
}
