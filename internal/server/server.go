package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yamdb/apiserver/config"
	"github.com/yamdb/apiserver/internal/db"
	"github.com/yamdb/apiserver/internal/handlers"
	"github.com/yamdb/apiserver/internal/mailer"
	"github.com/yamdb/apiserver/internal/services"
	"github.com/yamdb/apiserver/internal/store"
)

// Repositories groups the persistence backends the API is served from.
type Repositories struct {
	Users      services.UserRepository
	Categories services.CategoryRepository
	Genres     services.GenreRepository
	Titles     services.TitleRepository
	Reviews    services.ReviewRepository
	Comments   services.CommentRepository
}

// SQLRepositories backs every repository with the given PostgreSQL pool.
func SQLRepositories(conn *sql.DB) Repositories {
	return Repositories{
		Users:      store.NewUserRepository(conn),
		Categories: store.NewCategoryRepository(conn),
		Genres:     store.NewGenreRepository(conn),
		Titles:     store.NewTitleRepository(conn),
		Reviews:    store.NewReviewRepository(conn),
		Comments:   store.NewCommentRepository(conn),
	}
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	mail       mailer.Sender
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	confirmations, mail, err := mailer.NewConfirmationSender(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	router := NewRouter(SQLRepositories(dbConn), confirmations, cfg.Auth)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		db:         dbConn,
		mail:       mail,
	}, nil
}

// NewRouter builds the full route tree over the given repositories.
func NewRouter(repos Repositories, sender services.ConfirmationSender, authCfg config.AuthConfig, opts ...services.AuthOption) *chi.Mux {
	authService := services.NewAuthService(repos.Users, sender, authCfg, opts...)
	userService := services.NewUserService(repos.Users)
	catalogService := services.NewCatalogService(repos.Categories, repos.Genres)
	titleService := services.NewTitleService(repos.Titles, repos.Categories, repos.Genres)
	reviewService := services.NewReviewService(repos.Reviews, repos.Titles)
	commentService := services.NewCommentService(repos.Comments, repos.Reviews)

	authMiddleware := handlers.RequireAuth(authService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authService)
		})
		r.Route("/categories", func(r chi.Router) {
			handlers.CategoryRouter(r, catalogService, authMiddleware)
		})
		r.Route("/genres", func(r chi.Router) {
			handlers.GenreRouter(r, catalogService, authMiddleware)
		})
		r.Route("/titles", func(r chi.Router) {
			handlers.TitleRouter(r, titleService, reviewService, commentService, authMiddleware)
		})
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, userService, authMiddleware)
		})
	})

	return router
}

// Addr reports the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the mail transport and
// the database pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.mail != nil {
		err = errors.Join(err, s.mail.Close())
	}
	if s.db != nil {
		err = errors.Join(err, s.db.Close())
	}
	return err
}
