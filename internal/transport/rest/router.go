package rest

import (
	"net/http"
	"time"

	"crimepatrol/internal/service"
	"crimepatrol/internal/transport/rest/handler"
	"crimepatrol/internal/transport/rest/middleware"
	"crimepatrol/internal/transport/ws"

	"github.com/gorilla/mux"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService      *service.AuthService
	EmergencyService *service.EmergencyService
	WSHandler        *ws.Handler

	// ListCacheTTL caches GET list responses; zero disables it
	ListCacheTTL time.Duration
	// PostRate bounds POST /emergency/location per client IP; zero disables it
	PostRate       rate.Limit
	PostBurst      int
	AllowedOrigins string
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	emergencyHandler := handler.NewEmergencyHandler(c.EmergencyService)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)
	listCache := middleware.Cache(gocache.New(c.ListCacheTTL, 2*c.ListCacheTTL+time.Second), c.ListCacheTTL)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.AllowedOrigins))

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")

	post := v1.NewRoute().Subrouter()
	if c.PostRate > 0 {
		post.Use(middleware.RateLimit(middleware.NewIPRateLimiter(c.PostRate, c.PostBurst)))
	}
	post.HandleFunc("/emergency/location", emergencyHandler.PostLocation).Methods("POST", "OPTIONS")

	lists := v1.NewRoute().Subrouter()
	lists.Use(listCache)
	lists.HandleFunc("/emergency/pings", emergencyHandler.List).Methods("GET", "OPTIONS")
	lists.HandleFunc("/emergency/pings/nearby", emergencyHandler.Nearby).Methods("GET", "OPTIONS")

	v1.HandleFunc("/emergency/pings/{id}", emergencyHandler.Get).Methods("GET", "OPTIONS")

	// WebSocket route
	if c.WSHandler != nil {
		v1.HandleFunc("/ws", c.WSHandler.ServeWS).Methods("GET")
	}

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Operator routes (require operator auth)
	operatorRoutes := v1.NewRoute().Subrouter()
	operatorRoutes.Use(authMW.RequireOperator)

	operatorRoutes.HandleFunc("/emergency/pings/{id}/status", emergencyHandler.UpdateStatus).Methods("PATCH", "OPTIONS")

	return r
}

func corsMiddleware(allowedOrigins string) mux.MiddlewareFunc {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
