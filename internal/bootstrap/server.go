package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rsv360/reservation-core/api"
	"github.com/rsv360/reservation-core/config"
)

// Handlers groups the HTTP surface wired by the app binary.
type Handlers struct {
	Properties   *api.PropertyHandler
	Reservations *api.ReservationHandler
	Timeshare    *api.TimeshareHandler
	Webhooks     *api.WebhookHandler
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails.
func Run(ctx context.Context, cfg *config.Config, handlers Handlers) error {
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	handlers.Properties.Register(v1.Group("/properties"))
	handlers.Reservations.Register(v1.Group("/reservations"))
	handlers.Timeshare.Register(v1.Group("/shares"))
	handlers.Webhooks.Register(v1.Group("/webhooks"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
