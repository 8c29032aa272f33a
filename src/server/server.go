package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalexecutor/src/engine"
	"signalexecutor/src/executors"
	"signalexecutor/src/handler"
	"signalexecutor/src/repository"
)

// NewRouter wires the operator and ingestion API.
func NewRouter(db *gorm.DB, e *engine.Engine, fleet *executors.Fleet) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/signals", func(r chi.Router) {
		r.Post("/", handler.CreateSignalHandler(e))
		r.Post("/spoil", handler.ForceSpoilHandler(fleet))
		r.Post("/close", handler.ForceCloseHandler(fleet))
		r.Get("/{id}", handler.GetSignalHandler(repository.NewSignalRepositoryWithDB(db)))
		r.Get("/{id}/orders", handler.SignalOrdersHandler(repository.NewOrderRepositoryWithDB(db)))
	})
	r.Get("/orders/{id}/history", handler.OrderHistoryHandler(repository.NewHistoryRepositoryWithDB(db)))

	return r
}

// StartServer serves h on port until SIGINT or SIGTERM.
func StartServer(port string, h http.Handler) {
	addr := ":" + port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
