// Package server exposes the models over HTTP: text completions, on-demand
// parity runs, health and Prometheus metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/samcharles93/mingpt/internal/gpt"
	"github.com/samcharles93/mingpt/internal/hfgpt2"
	"github.com/samcharles93/mingpt/internal/logger"
	"github.com/samcharles93/mingpt/internal/metrics"
	"github.com/samcharles93/mingpt/internal/tokenizer"
)

const (
	defaultMaxTokens = 256
	defaultSteps     = 20
)

// Options configures a Server. Reference may be nil, in which case
// reference completions and parity runs answer 503.
type Options struct {
	ModelType   string
	Candidate   *gpt.GPT
	Reference   *hfgpt2.Model
	Tokenizer   tokenizer.Tokenizer
	Fingerprint uint64

	// Rate is the sustained request rate per second for the model
	// endpoints; zero disables limiting. Burst defaults to 1.
	Rate  float64
	Burst int
	// MaxTokens caps max_tokens in a completion request.
	MaxTokens int

	Log logger.Logger
}

type Server struct {
	opts     Options
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	limiter  *rate.Limiter
	log      logger.Logger
	clock    func() time.Time
}

func New(opts Options) *Server {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Log == nil {
		opts.Log = logger.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s := &Server{
		opts:     opts,
		registry: reg,
		metrics:  metrics.New(reg),
		log:      opts.Log.With("component", "server"),
		clock:    time.Now,
	}
	if opts.Rate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.Rate), max(opts.Burst, 1))
	}
	return s
}

// Register mounts the routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/completions", s.limited(s.handleCompletions))
	e.POST("/v1/parity", s.limited(s.handleParity))
	e.GET("/healthz", s.handleHealth)
	metricsHandler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	e.GET("/metrics", func(c *echo.Context) error {
		metricsHandler.ServeHTTP(c.Response(), c.Request())
		return nil
	})
}

// Handler returns an Echo instance with logging and recovery middleware
// and every route registered.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	s.Register(e)
	return e
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readHeaderTimeout time.Duration) error {
	s.log.Info("starting server", "address", addr, "model", s.opts.ModelType)
	sc := echo.StartConfig{
		Address: addr,
		BeforeServeFunc: func(srv *http.Server) error {
			srv.ReadHeaderTimeout = readHeaderTimeout
			return nil
		},
	}
	return sc.Start(ctx, s.Handler())
}

// limited answers 429 once the token bucket is empty.
func (s *Server) limited(next echo.HandlerFunc) echo.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(c *echo.Context) error {
		if !s.limiter.Allow() {
			s.metrics.RateLimited.Inc()
			return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "too many requests")
		}
		return next(c)
	}
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"model":     s.opts.ModelType,
		"reference": s.opts.Reference != nil,
	})
}
