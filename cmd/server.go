package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"karte-backend/internal/apperror"
	"karte-backend/internal/config"
	"karte-backend/internal/handlers"
	"karte-backend/internal/middleware"
	"karte-backend/internal/photostore"
	"karte-backend/internal/photostore/local"
	"karte-backend/internal/photostore/s3store"
	"karte-backend/internal/repository"
	"karte-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// routes bundles what the router dispatches to
type routes struct {
	auth      middleware.SessionValidator
	db        handlers.Pinger
	admins    *handlers.AdminHandler
	customers *handlers.CustomerHandler
	visits    *handlers.VisitHandler
	me        *handlers.MeHandler
	ws        *handlers.WebSocketHandler
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	// Connect to database
	db, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	photos, err := openPhotoStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	// Initialize repositories
	customerRepo := repository.NewCustomerRepository(db)
	visitRepo := repository.NewVisitRepository(db)
	tokenRepo := repository.NewLinkTokenRepository(db)
	adminRepo := repository.NewAdminRepository(db)

	// Initialize services
	wsHub := services.NewWSHub()
	authService := services.NewAuthService(adminRepo, authOptions(cfg))
	identity := services.NewLineIdentity(cfg.Line.ChannelID, cfg.Line.ChannelSecret)
	if !identity.Verifies() {
		log.Warn().Msg("line.channel_secret is not set; LINE user ids are trusted without verification")
	}
	customerService := services.NewCustomerService(customerRepo, visitRepo, photos, wsHub)
	visitService := services.NewVisitService(customerRepo, visitRepo, photos, wsHub, cfg.Storage.PresignTTL)
	linkService := services.NewLinkService(tokenRepo, customerRepo, authService, identity, wsHub, cfg.Link.TokenTTL)
	viewService := services.NewCustomerViewService(customerRepo, visitRepo, photos)

	janitor, err := services.NewLinkTokenJanitor(linkService, cfg.Link.CleanupSchedule)
	if err != nil {
		return err
	}
	janitor.Start()
	defer janitor.Stop()

	// Initialize handlers
	validate := apperror.NewValidator()
	r := newRouter(routes{
		auth:      authService,
		db:        db,
		admins:    handlers.NewAdminHandler(authService, validate),
		customers: handlers.NewCustomerHandler(customerService, linkService, validate),
		visits:    handlers.NewVisitHandler(visitService, validate),
		me:        handlers.NewMeHandler(linkService, viewService, validate),
		ws:        handlers.NewWebSocketHandler(wsHub, authService),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("storage", cfg.Storage.Backend).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Hijacked WebSocket connections are not closed by Shutdown
	wsHub.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
	return nil
}

// openPhotoStore builds the configured photo store
func openPhotoStore(ctx context.Context, cfg config.StorageConfig) (photostore.Store, error) {
	switch cfg.Backend {
	case "s3":
		return s3store.New(ctx, cfg)
	case "local":
		return local.New(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", handlers.Healthz(rt.db))

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/admin/register", rt.admins.Register)
		r.Post("/admin/login", rt.admins.Login)
		r.Post("/customer/login", rt.me.Login)

		// Console routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(rt.auth, services.RoleAdmin))

			r.Get("/customers", rt.customers.ListCustomers)
			r.Post("/customers", rt.customers.CreateCustomer)
			r.Route("/customers/{id}", func(r chi.Router) {
				r.Get("/", rt.customers.GetCustomer)
				r.Patch("/", rt.customers.UpdateCustomer)
				r.Delete("/", rt.customers.DeleteCustomer)
				r.Post("/link-tokens", rt.customers.IssueLinkToken)

				r.Get("/visits", rt.visits.ListVisits)
				r.Post("/visits", rt.visits.CreateVisit)
				r.Route("/visits/{visitId}", func(r chi.Router) {
					r.Get("/", rt.visits.GetVisit)
					r.Put("/", rt.visits.UpdateVisit)
					r.Delete("/", rt.visits.DeleteVisit)
					r.Get("/photos/{slot}", rt.visits.GetPhoto)
					r.Delete("/photos/{slot}", rt.visits.DeletePhoto)
					r.Get("/photos/{slot}/url", rt.visits.PhotoURL)
				})
			})
		})

		// LIFF customer routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(rt.auth, services.RoleCustomer))

			r.Get("/me", rt.me.Profile)
			r.Get("/me/visits", rt.me.History)
			r.Get("/me/visits/latest", rt.me.LatestVisit)
			r.Get("/me/visits/{visitId}/photos/{slot}", rt.me.Photo)
		})
	})

	// WebSocket route
	r.Get("/ws", rt.ws.HandleWebSocket)

	return r
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
