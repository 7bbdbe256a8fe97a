// Package dashboard serves a read-only HTTP view of the conversation ledger.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/gepeto/internal/conversation"
	"gorm.io/gorm"
)

// DefaultPollInterval is how often live streams check for new turns.
const DefaultPollInterval = 2 * time.Second

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	DB           *gorm.DB
	Port         int
	PollInterval time.Duration
	Logger       zerolog.Logger
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("dashboard: db is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	log := opts.Logger.With().Str("component", "dashboard").Logger()

	router, err := NewRouter(opts.DB, opts.PollInterval)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", opts.Port).Msg("dashboard listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine with every dashboard route registered.
func NewRouter(db *gorm.DB, poll time.Duration) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("dashboard: db is required")
	}
	store, err := conversation.NewStore(conversation.StoreOpts{DB: db})
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, db, store, poll)
	return router, nil
}
