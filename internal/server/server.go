// Package server exposes the authoring commands, the review ledger, and the
// item event stream over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/zulandar/coursereel/internal/authoring"
	"github.com/zulandar/coursereel/internal/events"
	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/logging"
	"github.com/zulandar/coursereel/internal/review"
)

// Decisions is the reviewer side of the review ledger.
type Decisions interface {
	RecordDecision(ctx context.Context, contentID string, stage item.ReviewStage, status review.Status, comment, reviewer string) (review.Decision, error)
	ListDecisions(ctx context.Context, contentID string) ([]review.Decision, error)
	PendingRequests(ctx context.Context) ([]review.Pending, error)
}

// Options holds the server dependencies.
type Options struct {
	Service  *authoring.Service
	Ledger   Decisions
	Sync     *review.Synchronizer // optional; enables on-demand sync
	Bus      *events.Bus          // optional; enables /api/events and /api/ws
	Gatherer prometheus.Gatherer  // optional; enables /metrics
	Port     int
	Logger   *logrus.Logger
}

// Server is the HTTP surface.
type Server struct {
	svc    *authoring.Service
	ledger Decisions
	sync   *review.Synchronizer
	bus    *events.Bus
	hub    *Hub
	log    *logrus.Entry
}

// New returns a server.
func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, fmt.Errorf("server: service is required")
	}
	s := &Server{
		svc:    opts.Service,
		ledger: opts.Ledger,
		sync:   opts.Sync,
		bus:    opts.Bus,
		log:    logging.Component(opts.Logger, "server"),
	}
	if opts.Bus != nil {
		s.hub = NewHub(s.log)
	}
	return s, nil
}

// Router builds the gin engine.
func (s *Server) Router(gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes(router)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts Options) error {
	s, err := New(opts)
	if err != nil {
		return err
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	if s.hub != nil {
		go s.hub.Run(ctx, s.bus)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.Router(opts.Gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("http shutdown")
		}
	}()

	s.log.WithField("port", opts.Port).Info("http server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).Round(time.Microsecond),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}
