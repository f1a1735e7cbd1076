package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-starter/backend"
	"github.com/jrsteele09/go-auth-starter/internal/config"
	"github.com/jrsteele09/go-auth-starter/internal/logging"
	"github.com/jrsteele09/go-auth-starter/internal/telemetry"
	"github.com/jrsteele09/go-auth-starter/profiles"
	"github.com/jrsteele09/go-auth-starter/server"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const maxPanicRestarts = 3

func main() {
	for restarts := 0; ; restarts++ {
		err := run()
		if err == nil {
			break
		}
		if !errors.Is(err, errPanicRecovered) || restarts >= maxPanicRestarts {
			log.Fatal().Err(err).Msg("Error running server")
		}
		log.Error().Err(err).Int("restart", restarts+1).Msg("Restarting server")
		time.Sleep(1 * time.Second)
	}
	log.Info().Msg("Server stopped")
}

var errPanicRecovered = errors.New("panic recovered")

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errPanicRecovered
		}
	}()

	c := config.New()
	logging.Setup(c.GetLogLevel(), c.GetEnv())
	displayAppname(c.GetAppName())

	ctx := context.Background()
	var cleanups []func(context.Context) error
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("cleanup failed")
			}
		}
	}()

	if c.GetTracingEnabled() {
		tp, err := telemetry.InitTracing(ctx, c.GetAppName(), c.GetTracingEndpoint(), c.GetTracingSampleRate())
		if err != nil {
			return err
		}
		cleanups = append(cleanups, tp.Shutdown)
	}

	deps := server.Dependencies{
		Backend:     backendOptions(ctx, c),
		Metrics:     telemetry.NewMetrics(),
		ReadyChecks: map[string]server.ReadinessCheck{},
	}

	if dsn := c.GetDatabaseURL(); dsn != "" {
		pool, err := profiles.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, func(context.Context) error { pool.Close(); return nil })
		deps.ProfileRepo = profiles.NewPgxRepo(pool)
		deps.ReadyChecks["database"] = pool.Ping
		log.Info().Msg("Reading profiles from the database")
	}

	if redisURL := c.GetRedisURL(); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return fmt.Errorf("[main run] invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		cleanups = append(cleanups, func(context.Context) error { return rdb.Close() })
		deps.ProfileCache = rdb
		deps.ReadyChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Info().Dur("ttl", c.GetProfileCacheTTL()).Msg("Caching profiles in redis")
	}

	handler, err := server.New(c, deps)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(srv) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

// backendOptions builds the options every per-request client shares.
func backendOptions(ctx context.Context, c config.Config) backend.Options {
	opts := backend.Options{
		URL:           c.GetBackendURL(),
		AnonKey:       c.GetBackendAnonKey(),
		CookieName:    c.GetAuthCookieName(),
		RefreshMargin: c.GetRefreshMargin(),
		Sealer:        backend.NewSealer(c.GetCookieSecret()),
		Cookie: backend.CookieOptions{
			Secure: c.GetSecureCookies(),
		},
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}

	switch {
	case c.GetVerifyWithJWKS():
		opts.Verifier = backend.NewJWKSVerifier(ctx, opts.URL, opts.HTTPClient)
	case c.GetBackendJWTSecret() != "":
		opts.Verifier = backend.NewHMACVerifier(c.GetBackendJWTSecret())
	default:
		log.Warn().Msg("No BACKEND_JWT_SECRET or BACKEND_VERIFY_JWKS set, access tokens are not verified locally")
	}
	if opts.Sealer == nil {
		log.Warn().Msg("COOKIE_SECRET not set, the PKCE verifier cookie is stored unsealed")
	}
	return opts
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
