package server

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/pulseboard/tsengine/internal/analytics"
	"github.com/pulseboard/tsengine/internal/observability/metrics"
)

// Server hosts the analytics HTTP API.
type Server struct {
	config  *Config
	engine  *analytics.Engine
	metrics *metrics.Metrics
	logger  *logrus.Logger
	http    *http.Server
}

// New assembles the router, middleware, and listener.
func New(config *Config, engine *analytics.Engine, m *metrics.Metrics, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}

	s := &Server{
		config:  config,
		engine:  engine,
		metrics: m,
		logger:  logger,
	}

	s.http = &http.Server{
		Addr:         config.Address(),
		Handler:      s.buildRouter(),
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}

	return s
}

// buildRouter wires middleware and one route per engine operation.
func (s *Server) buildRouter() *mux.Router {
	handlers := NewHandlers(s.engine, s.config.API.DefaultMaxPoints, s.logger)

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(recoveryMiddleware(s.logger))
	router.Use(loggingMiddleware(s.logger, s.metrics))

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/metrics/{id}/series", handlers.GetSeries).Methods(http.MethodGet)
	api.HandleFunc("/metrics/{id}/summary", handlers.GetSummary).Methods(http.MethodGet)
	api.HandleFunc("/metrics/{id}/decompose", handlers.GetDecomposition).Methods(http.MethodGet)
	api.HandleFunc("/metrics/{id}/anomalies", handlers.GetAnomalies).Methods(http.MethodGet)
	api.HandleFunc("/metrics/{id}/forecast", handlers.GetForecast).Methods(http.MethodGet)
	api.HandleFunc("/metrics/{id}/entropy", handlers.GetEntropy).Methods(http.MethodGet)
	api.HandleFunc("/correlation", handlers.GetCorrelation).Methods(http.MethodGet)
	api.HandleFunc("/cache", handlers.InvalidateCache).Methods(http.MethodDelete)

	router.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	return router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.WithField("address", s.config.Address()).Info("starting analytics server")

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down analytics server")
	return s.http.Shutdown(ctx)
}
