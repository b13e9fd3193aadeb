package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zsiec/ltcgen/internal/config"
	"github.com/zsiec/ltcgen/internal/errors"
	"github.com/zsiec/ltcgen/internal/generator"
	"github.com/zsiec/ltcgen/internal/health"
	"github.com/zsiec/ltcgen/internal/logger"
)

const (
	healthInterval = 30 * time.Second
	maxHeapBytes   = 4 << 30
)

// Server serves the LTC API over HTTP/1.1, and over HTTP/3 when TLS is
// configured.
type Server struct {
	config       *config.ServerConfig
	router       *mux.Router
	http3Server  *http3.Server
	httpServer   *http.Server
	listener     net.Listener
	logger       *logrus.Logger
	redis        *redis.Client
	service      *generator.Service
	healthMgr    *health.Manager
	errorHandler *errors.ErrorHandler
	limiter      *rate.Limiter
}

// New creates a server with its routes registered. redisClient is nil when
// the render cache is disabled.
func New(cfg *config.ServerConfig, log *logrus.Logger, svc *generator.Service, redisClient *redis.Client) *Server {
	s := &Server{
		config:       cfg,
		router:       mux.NewRouter(),
		logger:       log,
		redis:        redisClient,
		service:      svc,
		healthMgr:    health.NewManager(logger.NewLogrusAdapter(logger.WithComponent(log, "health"))),
		errorHandler: errors.NewErrorHandler(log),
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	s.registerHealthCheckers()
	s.setupRoutes()
	return s
}

// Start serves until ctx is cancelled, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	go s.healthMgr.StartPeriodicChecks(ctx, healthInterval)

	errCh := make(chan error, 2)
	if err := s.startHTTPServer(errCh); err != nil {
		return err
	}
	if s.config.TLSEnabled() {
		if err := s.startHTTP3Server(errCh); err != nil {
			s.Shutdown()
			return err
		}
	}

	select {
	case err := <-errCh:
		s.Shutdown()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

func (s *Server) startHTTPServer(errCh chan<- error) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.HTTPPort))
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP port: %w", err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	tlsEnabled := s.config.TLSEnabled()
	s.logger.WithFields(logrus.Fields{
		"addr": ln.Addr().String(),
		"tls":  tlsEnabled,
	}).Info("Starting HTTP server")

	go func() {
		var err error
		if tlsEnabled {
			err = s.httpServer.ServeTLS(ln, s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return nil
}

func (s *Server) startHTTP3Server(errCh chan<- error) error {
	cert, err := tls.LoadX509KeyPair(s.config.TLSCertFile, s.config.TLSKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS certificates: %w", err)
	}

	s.http3Server = &http3.Server{
		Addr:    fmt.Sprintf(":%d", s.config.HTTP3Port),
		Handler: s.router,
		TLSConfig: &tls.Config{
			MinVersion:   tls.VersionTLS13,
			NextProtos:   []string{"h3"},
			Certificates: []tls.Certificate{cert},
		},
		QUICConfig: &quic.Config{
			MaxIncomingStreams:    s.config.MaxIncomingStreams,
			MaxIncomingUniStreams: s.config.MaxIncomingUniStreams,
			MaxIdleTimeout:        s.config.MaxIdleTimeout,
		},
	}

	s.logger.WithField("port", s.config.HTTP3Port).Info("Starting HTTP/3 server")
	go func() {
		if err := s.http3Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return nil
}

// Shutdown drains HTTP/1.1 within the shutdown timeout and closes HTTP/3.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down servers")

	var firstErr error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}
	if s.http3Server != nil {
		if err := s.http3Server.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to shutdown HTTP/3 server: %w", err)
		}
	}

	s.logger.Info("Server shutdown complete")
	return firstErr
}

// Addr is the bound HTTP address once Start is running.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(logger.RequestLoggerMiddleware(s.logger))
	s.router.Use(s.errorHandler.Middleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.altSvcMiddleware)

	healthHandler := health.NewHandler(s.healthMgr)
	s.router.HandleFunc("/health", healthHandler.HandleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", healthHandler.HandleReady).Methods(http.MethodGet)
	s.router.HandleFunc("/live", healthHandler.HandleLive).Methods(http.MethodGet)
	s.router.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.rateLimitMiddleware)
	api.Use(s.bodyLimitMiddleware)
	api.HandleFunc("/rates", s.handleRates).Methods(http.MethodGet)
	api.HandleFunc("/ltc", s.handleRender).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/frames", s.handleFrames).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/userbits", s.handleGetUserBits).Methods(http.MethodGet)
	api.HandleFunc("/userbits", s.handlePatchUserBits).Methods(http.MethodPatch, http.MethodOptions)
	api.HandleFunc("/userbits/field1", s.handleSetField1).Methods(http.MethodPut, http.MethodOptions)

	s.router.NotFoundHandler = http.HandlerFunc(s.errorHandler.HandleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.errorHandler.HandleMethodNotAllowed)
}

func (s *Server) registerHealthCheckers() {
	s.healthMgr.Register(health.NewGeneratorChecker(func() error {
		_, err := s.service.Frames(generator.FramesRequest{Count: 1})
		return err
	}))
	s.healthMgr.Register(health.NewMemoryChecker(maxHeapBytes))
	if s.redis != nil {
		s.healthMgr.Register(health.NewRedisChecker(s.redis))
	}
}

// GetRouter returns the router for testing.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}
