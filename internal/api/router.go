package api

import (
	"net/http"

	"github.com/Priya8975/minutes-live-sync/internal/auth"
	"github.com/Priya8975/minutes-live-sync/internal/drafts"
	"github.com/Priya8975/minutes-live-sync/internal/livebus"
	"github.com/Priya8975/minutes-live-sync/internal/metrics"
	ws "github.com/Priya8975/minutes-live-sync/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps are the components the HTTP surface is wired to. Auth and Limiter may
// be nil: no auth means every request is accepted, no limiter means emits
// are never throttled.
type Deps struct {
	Drafts  *drafts.Store
	Bus     *livebus.Bus
	Hub     *ws.Hub
	Auth    *auth.JWTManager
	Limiter ws.Limiter
	Metrics *metrics.Metrics
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.Use(corsMiddleware)

	draftHandler := NewDraftHandler(d.Drafts)
	liveHandler := NewLiveHandler(d.Bus, d.Limiter)

	r.Handle("/metrics", d.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(d.Auth))
		r.Get("/ws", d.Hub.HandleWebSocket)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(d.Hub))

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(d.Auth))

			r.Route("/drafts", func(r chi.Router) {
				r.Get("/", draftHandler.List)
				r.Post("/", draftHandler.Create)
				r.Get("/{id}", draftHandler.Get)
				r.Put("/{id}", draftHandler.Update)
				r.Delete("/{id}", draftHandler.Delete)
			})

			r.Post("/live/{topic}", liveHandler.Emit)
		})
	})

	return r
}

// corsMiddleware adds CORS headers for the browser client.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
