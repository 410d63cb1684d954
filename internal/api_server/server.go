package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/guideforge/guideforge/internal/auth"
	"github.com/guideforge/guideforge/internal/config"
	"github.com/guideforge/guideforge/internal/dispatch"
	"github.com/guideforge/guideforge/internal/handlers"
	"github.com/guideforge/guideforge/internal/service"
	"github.com/guideforge/guideforge/internal/store"
	"github.com/guideforge/guideforge/pkg/metrics"
	"github.com/guideforge/guideforge/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg        *config.Config
	store      store.Store
	dispatcher *dispatch.Dispatcher
	publisher  *service.PublishService
	listener   net.Listener
}

// New returns a new instance of a guideforge API server.
func New(
	cfg *config.Config,
	store store.Store,
	dispatcher *dispatch.Dispatcher,
	publisher *service.PublishService,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		publisher:  publisher,
		listener:   listener,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	authenticator, err := auth.NewAuthenticator(s.cfg.Service.Auth)
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}
	triggerAuthenticator, err := auth.NewTriggerAuthenticator(s.cfg.Service.Auth)
	if err != nil {
		return fmt.Errorf("failed to create trigger authenticator: %w", err)
	}

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "PUT", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	jobService := service.NewJobService(s.store)
	h := handlers.NewServiceHandler(jobService, s.publisher, s.dispatcher)

	router.Get("/health", h.Health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authenticator.Authenticator)

			r.Post("/jobs", h.EnqueueJob)
			r.Post("/jobs/batch", h.EnqueueBatch)
			r.Get("/jobs", h.ListJobs)
			r.Get("/jobs/{id}", h.GetJob)
			r.Post("/jobs/{id}/cancel", h.CancelJob)
			r.Post("/jobs/{id}/retry", h.RetryJob)
			r.Post("/jobs/{id}/approve", h.ApproveJob)
			r.Post("/jobs/{id}/reject", h.RejectJob)
			r.Get("/stats", h.Stats)
		})

		// Dispatch triggers accept either a scheduler secret or a user session.
		r.Group(func(r chi.Router) {
			r.Use(triggerAuthenticator.Authenticator)

			r.Post("/dispatch", h.TriggerDispatch)
			r.Post("/dispatch/tick", h.TriggerTick)
		})
	})

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
