// Package server wires the concierge HTTP surface: the inquiry route, health
// and metrics endpoints, and the middleware stack around them.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/teilomillet/concierge/config"
	"github.com/teilomillet/concierge/errors"
	"github.com/teilomillet/concierge/server/assistant"
	"github.com/teilomillet/concierge/server/circuitbreaker"
	"github.com/teilomillet/concierge/server/completion"
	"github.com/teilomillet/concierge/server/handlers"
	"github.com/teilomillet/concierge/server/metrics"
	"github.com/teilomillet/concierge/server/middleware"
	"github.com/teilomillet/concierge/server/prompt"
	"github.com/teilomillet/concierge/server/tools"
	"github.com/teilomillet/concierge/server/validation"
)

// Backend is the completion service as seen by the server.
type Backend interface {
	completion.Completer
	handlers.BreakerStater
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	watcher    config.Watcher
	logger     *zap.Logger
	metrics    *metrics.Metrics
	prompts    *prompt.Assembler
	admission  *middleware.Admission
	router     chi.Router
	shutdown   time.Duration
}

// NewServer builds a server talking to the configured completion service.
func NewServer(watcher config.Watcher, logger *zap.Logger) (*Server, error) {
	cfg := watcher.GetCurrentConfig()
	m := metrics.NewMetrics()

	breaker, err := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Name:             "completion",
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
		Interval:         cfg.CircuitBreaker.Interval,
		Timeout:          cfg.CircuitBreaker.Timeout,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
	}, logger, m.Registry())
	if err != nil {
		return nil, fmt.Errorf("create circuit breaker: %w", err)
	}

	client := completion.NewClient(cfg.Completion, breaker, m, logger)
	return newServer(watcher, client, m, logger)
}

// NewServerWithCompleter builds a server around an existing backend. Tests
// use it with a mock completer.
func NewServerWithCompleter(watcher config.Watcher, backend Backend, logger *zap.Logger) (*Server, error) {
	return newServer(watcher, backend, metrics.NewMetrics(), logger)
}

func newServer(watcher config.Watcher, backend Backend, m *metrics.Metrics, logger *zap.Logger) (*Server, error) {
	cfg := watcher.GetCurrentConfig()

	templates, err := prompt.Compile(cfg.Prompts)
	if err != nil {
		return nil, fmt.Errorf("compile prompts: %w", err)
	}
	prompts := prompt.NewAssembler(templates, time.Now)

	resolver, err := tools.NewImageResolver(cfg.Assets.PublicDir, m, logger)
	if err != nil {
		return nil, fmt.Errorf("create image resolver: %w", err)
	}
	registry := tools.NewRegistry(
		tools.NewImageAnalyzer(backend, prompts, resolver, cfg.Assistant.VisionModel, logger),
	)
	dispatcher := tools.NewDispatcher(registry, m, logger)

	a := assistant.New(backend, prompts, dispatcher, assistant.Options{
		ChatModel:    cfg.Assistant.ChatModel,
		VisionModel:  cfg.Assistant.VisionModel,
		HistoryLimit: cfg.Assistant.HistoryLimit,
		ReofferTools: cfg.Assistant.ReofferTools,
	}, m, logger)
	if cfg.Assistant.CountTokens {
		counter, err := validation.NewTokenCounter(cfg.Assistant.ChatModel)
		if err != nil {
			logger.Warn("Token accounting disabled", zap.Error(err))
		} else {
			a.SetTokenCounter(counter)
		}
	}

	s := &Server{
		watcher:   watcher,
		logger:    logger,
		metrics:   m,
		prompts:   prompts,
		admission: middleware.NewAdmission(cfg.Server.MaxConcurrent, cfg.Server.MaxQueued, m),
		shutdown:  cfg.Server.ShutdownTimeout,
	}
	s.router = s.routes(cfg.Server, a, backend)
	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        s.router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	logger.Info("Server configured",
		zap.String("chat_model", cfg.Assistant.ChatModel),
		zap.String("vision_model", cfg.Assistant.VisionModel),
		zap.Strings("tools", registry.Names()),
		zap.String("prompts_version", prompts.Version()),
	)
	return s, nil
}

func (s *Server) routes(cfg config.ServerConfig, a *assistant.Assistant, backend Backend) chi.Router {
	r := chi.NewRouter()

	r.Use(errors.ErrorHandler(s.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(s.logger))
	r.Use(middleware.RequestTimer)
	r.Use(middleware.CORS)
	r.Use(middleware.PrometheusMetrics(s.metrics))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, errors.NewNotFoundError(middleware.GetRequestID(r.Context()), r.URL.Path))
	})

	r.Get("/health", handlers.HealthHandler(backend, s.prompts.Version))
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// Time spent waiting for admission counts against the request timeout.
	r.With(
		middleware.Timeout(cfg.RequestTimeout),
		s.admission.Handler,
		limitBody(cfg.MaxBodyBytes),
		validation.ValidateInquiry(s.logger),
	).Method(http.MethodPost, "/api/route", handlers.NewInquiryHandler(a, s.logger))

	return r
}

// limitBody caps request bodies at n bytes; n <= 0 disables the cap.
func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if n <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on the configured port and blocks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. Config reloads are applied while serving.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		s.watchConfig(watchCtx)
	}()
	defer func() {
		stopWatch()
		<-watchDone
	}()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Server started", zap.String("address", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
		defer cancel()

		s.logger.Info("Shutting down server")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error during server shutdown: %w", err)
		}
		return <-errChan

	case err := <-errChan:
		return err
	}
}

// watchConfig applies reloaded configs until ctx is done or the watcher
// closes its channel.
func (s *Server) watchConfig(ctx context.Context) {
	updates := s.watcher.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			s.applyConfig(cfg)
		}
	}
}

// applyConfig swaps the prompt templates. Listener, model and completion
// settings take effect on restart.
func (s *Server) applyConfig(cfg *config.Config) {
	templates, err := prompt.Compile(cfg.Prompts)
	if err != nil {
		s.logger.Error("Keeping previous prompts, reloaded templates do not compile", zap.Error(err))
		return
	}
	s.prompts.Swap(templates)
	s.logger.Info("Prompts reloaded", zap.String("prompts_version", s.prompts.Version()))
}
