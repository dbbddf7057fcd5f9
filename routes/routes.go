package routes

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"sphere/controllers/users"
	"sphere/middleware"
	"sphere/mining"
	"sphere/referral"
	"sphere/store"
	"sphere/tasks"
)

// Deps carries the wired services the router exposes.
type Deps struct {
	Store    store.Store
	Mining   *mining.Service
	Referral *referral.Service
	Tasks    *tasks.Service
}

func optionsHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func InitRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()

	// Health check endpoint for container health checks (root level)
	r.Handle("/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
			"service":   "sphere-api",
		})
	})).Methods(http.MethodGet)

	// CORS - origins from CORS_ALLOWED_ORIGINS (comma-separated) or defaults
	originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	origins := []string{
		"http://localhost:3000", "http://localhost:8080", "http://127.0.0.1:3000", "http://127.0.0.1:8080",
	}
	if originsEnv != "" {
		parts := strings.Split(originsEnv, ",")
		for _, p := range parts {
			if o := strings.TrimSpace(p); o != "" {
				origins = append(origins, o)
			}
		}
	}
	r.Use(func(next http.Handler) http.Handler {
		return handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Requested-With", "X-Request-ID"}),
			handlers.AllowCredentials(),
		)(next)
	})

	// the websocket upgrade needs the raw connection, so it is registered
	// ahead of the /v1 subrouter and carries only auth, none of the
	// timeout/logging wrappers
	auth := middleware.NewAuth(deps.Store)
	referralController := users.NewReferralController(deps.Referral)
	r.Handle("/v1/referral/subscribe", auth.Middleware(http.HandlerFunc(referralController.Subscribe))).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()

	// catch-all OPTIONS handler for CORS preflight
	api.PathPrefix("/").HandlerFunc(optionsHandler).Methods(http.MethodOptions)

	api.Use(middleware.SecurityHeadersMiddleware)
	api.Use(middleware.RequestIDMiddleware)
	api.Use(middleware.RequestLogMiddleware)
	api.Use(middleware.RecoveryMiddleware)
	api.Use(middleware.MaxBodyMiddleware)
	api.Use(middleware.TimeoutMiddleware)

	registerUserRoutes(api, auth, deps)

	return r
}
