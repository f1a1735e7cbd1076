package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-starter/backend"
	"github.com/jrsteele09/go-auth-starter/guard"
	"github.com/jrsteele09/go-auth-starter/internal/config"
	"github.com/jrsteele09/go-auth-starter/internal/telemetry"
	"github.com/jrsteele09/go-auth-starter/profiles"
	"github.com/redis/go-redis/v9"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Dependencies are the process-wide collaborators shared by every request.
type Dependencies struct {
	// Backend is copied into every per-request client
	Backend backend.Options
	Metrics *telemetry.Metrics
	// ProfileRepo, when set, replaces the per-request row API reads
	ProfileRepo profiles.Repo
	// ProfileCache, when set, fronts profile reads with a redis cache
	ProfileCache redis.Cmdable
	ReadyChecks  map[string]ReadinessCheck
}

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	config     config.Config
	backend    backend.Options
	guard      *guard.Guard
	metrics    *telemetry.Metrics
	profiles   profiles.Repo
	cache      redis.Cmdable
	ready      map[string]ReadinessCheck
	providers  map[string]struct{}
}

func New(config config.Config, deps Dependencies) (*Server, error) {
	if deps.Backend.URL == "" {
		return nil, fmt.Errorf("[Server New] backend url is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NewMetrics()
	}

	s := &Server{
		env:       config.GetEnv(),
		mux:       http.NewServeMux(),
		config:    config,
		backend:   deps.Backend,
		metrics:   deps.Metrics,
		profiles:  deps.ProfileRepo,
		cache:     deps.ProfileCache,
		ready:     deps.ReadyChecks,
		providers: make(map[string]struct{}),
	}
	for _, p := range config.GetOAuthProviders() {
		s.providers[p] = struct{}{}
	}
	if s.backend.OnRequest == nil {
		s.backend.OnRequest = s.observeBackend
	}
	s.guard = guard.New(
		guard.WithRootPath(RouteIndex),
		guard.WithLoginPath(RouteLogin),
		guard.WithDecisionHook(func(d guard.Decision) {
			s.metrics.GuardDecisions.WithLabelValues(d.String()).Inc()
		}),
	)

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Printf("[%-19s] %s\n", colourMethod(method), path)
}

// observeBackend records backend round trips; status 0 is a transport failure
func (s *Server) observeBackend(operation string, status int, elapsed time.Duration) {
	s.metrics.BackendRequests.WithLabelValues(operation, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
