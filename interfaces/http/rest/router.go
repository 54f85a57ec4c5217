// Package rest wires the HTTP surface: routing, middleware and handlers.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	"meterhub-backend/interfaces/http/rest/handlers"
	"meterhub-backend/interfaces/http/rest/middleware"
)

// Router creates and configures the HTTP router
type Router struct {
	verifier  middleware.TokenVerifier
	projects  ports.ProjectRepository
	places    ports.PlaceRepository
	trackers  ports.TrackerRepository
	readings  ports.ReadingRepository
	users     ports.UserRepository
	assets    ports.AssetClient
	utility   ports.UtilityClient
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	verifier middleware.TokenVerifier,
	projects ports.ProjectRepository,
	places ports.PlaceRepository,
	trackers ports.TrackerRepository,
	readings ports.ReadingRepository,
	users ports.UserRepository,
	assets ports.AssetClient,
	utility ports.UtilityClient,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *Router {
	return &Router{
		verifier:  verifier,
		projects:  projects,
		places:    places,
		trackers:  trackers,
		readings:  readings,
		users:     users,
		assets:    assets,
		utility:   utility,
		publisher: publisher,
		logger:    logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "https://*.meterhub.io"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	// API v1 routes
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.verifier, rt.users, rt.logger))

		projectHandler := handlers.NewProjectHandler(rt.projects, rt.assets, rt.users, rt.publisher, rt.logger)
		r.Route("/projects", func(r chi.Router) {
			r.Post("/", projectHandler.CreateProject)
			r.Get("/", projectHandler.ListProjects)
			r.Get("/{projectID}", projectHandler.GetProject)
			r.Put("/{projectID}", projectHandler.UpdateProject)
			r.Delete("/{projectID}", projectHandler.DeleteProject)
			r.Post("/{projectID}/asset", projectHandler.MintProjectAsset)
			r.With(middleware.RequireAdmin).Post("/{projectID}/review", projectHandler.ReviewProject)
		})

		placeHandler := handlers.NewPlaceHandler(rt.places, rt.logger)
		trackerHandler := handlers.NewTrackerHandler(rt.trackers, rt.utility, rt.logger)
		r.Route("/places", func(r chi.Router) {
			r.Post("/", placeHandler.CreatePlace)
			r.Get("/", placeHandler.ListPlaces)
			r.Get("/{placeID}", placeHandler.GetPlace)
			r.Put("/{placeID}", placeHandler.UpdatePlace)
			r.Delete("/{placeID}", placeHandler.DeletePlace)
			r.With(middleware.RequireAdmin).Post("/{placeID}/review", placeHandler.ReviewPlace)

			r.Post("/{placeID}/trackers", trackerHandler.CreateTracker)
			r.Get("/{placeID}/trackers", trackerHandler.ListTrackers)
		})

		readingHandler := handlers.NewReadingHandler(rt.readings, rt.trackers, rt.logger)
		r.Route("/trackers", func(r chi.Router) {
			r.Get("/{trackerID}", trackerHandler.GetTracker)
			r.Delete("/{trackerID}", trackerHandler.DeleteTracker)
			r.Put("/{trackerID}/utility", trackerHandler.SetUtility)
			r.Delete("/{trackerID}/utility", trackerHandler.RemoveUtility)

			r.Post("/{trackerID}/readings", readingHandler.IngestReadings)
			r.Get("/{trackerID}/readings", readingHandler.ListReadings)
		})

		r.Get("/readings/{readingID}", readingHandler.GetReading)

		userHandler := handlers.NewUserHandler(rt.users, rt.logger)
		r.Route("/users", func(r chi.Router) {
			r.Get("/me", userHandler.GetMe)
			r.Put("/me/wallet", userHandler.SetWallet)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
