package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/sammcj/llmem/catalog"
	"github.com/sammcj/llmem/estimator"
	"github.com/shirou/gopsutil/v3/mem"
)

const ServiceName = "LLM Memory Calculator API"

type Options struct {
	Estimator   *estimator.Estimator
	Catalog     catalog.Lookup
	Metrics     *Metrics
	Version     string
	CORSOrigins []string
}

// Server exposes the estimator and the model catalog over HTTP.
type Server struct {
	estimator   *estimator.Estimator
	catalog     catalog.Lookup
	metrics     *Metrics
	version     string
	corsOrigins []string
	memory      func() (*mem.VirtualMemoryStat, error)
}

func New(opts Options) *Server {
	s := &Server{
		estimator:   opts.Estimator,
		catalog:     opts.Catalog,
		metrics:     opts.Metrics,
		version:     opts.Version,
		corsOrigins: opts.CORSOrigins,
		memory:      mem.VirtualMemory,
	}
	if s.estimator == nil {
		s.estimator = estimator.New()
	}
	if s.catalog == nil {
		s.catalog = catalog.Static(nil)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if len(s.corsOrigins) == 0 {
		s.corsOrigins = []string{"*"}
	}
	s.metrics.CatalogModels.Set(float64(len(s.catalog.Names())))
	return s
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) registerRoutes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.metrics.Middleware)

	router.HandleFunc("/health", Wrapper(s.health)).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	// API routes stay on the root router: a subrouter answers method mismatches with 404
	router.HandleFunc("/api/models", Wrapper(s.listModels)).Methods(http.MethodGet)
	router.HandleFunc("/api/models/{model_name}", Wrapper(s.getModel)).Methods(http.MethodGet)
	router.HandleFunc("/api/memory/inference", Wrapper(s.calculateInference)).Methods(http.MethodPost)
	router.HandleFunc("/api/memory/training", Wrapper(s.calculateTraining)).Methods(http.MethodPost)
	router.HandleFunc("/api/config/options", Wrapper(s.configOptions)).Methods(http.MethodGet)

	router.NotFoundHandler = s.metrics.Middleware(http.HandlerFunc(notFoundHandler))
	router.MethodNotAllowedHandler = s.metrics.Middleware(http.HandlerFunc(methodNotAllowedHandler))

	return router
}

// Handler returns the routed API wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(s.registerRoutes())
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", addr).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
