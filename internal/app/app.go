// Package app assembles the fern API service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/jobposting"
	"github.com/Ramsey-B/fern/internal/repositories/resume"
	"github.com/Ramsey-B/fern/internal/repositories/user"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/oracle"
	"github.com/Ramsey-B/fern/pkg/ratelimit"
	"github.com/Ramsey-B/fern/pkg/routes/duplicate"
	"github.com/Ramsey-B/fern/pkg/routes/recommendation"
	"github.com/Ramsey-B/fern/pkg/routes/search"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const shutdownTimeout = 15 * time.Second

// App is the running service and the dependencies it owns.
type App struct {
	config  *config.Config
	logger  ectologger.Logger
	echo    *echo.Echo
	health  *health.Checker
	startup *startup.Startup

	tracer   *tracing.Provider
	db       database.DB
	redis    *ratelimit.Client
	producer *kafka.Producer
	engine   *Engine

	serverErr chan error
}

// New prepares the service. Nothing is connected until Run.
func New(cfg *config.Config, logger ectologger.Logger) *App {
	a := &App{
		config:    cfg,
		logger:    logger,
		echo:      echo.New(),
		health:    health.NewChecker(cfg.Version),
		startup:   startup.NewStartup(logger, cfg.StartupMaxAttempts),
		serverErr: make(chan error, 1),
	}

	e := a.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second

	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.AllowOrigins}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	a.health.RegisterRoutes(e.Group("/api/v1/health"))

	a.addDependencies()
	return a
}

func (a *App) addDependencies() {
	cfg := a.config

	a.startup.AddDependency(&startup.Dependency{
		Name: "tracing",
		StartFunc: func(ctx context.Context) error {
			provider, err := tracing.NewProvider(ctx, cfg.Tracing())
			if err != nil {
				return err
			}
			a.tracer = provider
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			return a.tracer.Shutdown(ctx)
		},
	})

	engineRequires := []string{"tracing"}

	if cfg.DatabaseHost != "" {
		a.startup.AddDependency(&startup.Dependency{
			Name:     "database",
			Requires: []string{"tracing"},
			StartFunc: func(ctx context.Context) error {
				db, err := database.Connect(ctx, cfg.Database(), a.logger)
				if err != nil {
					return err
				}
				a.db = db
				a.health.AddCheck("database", health.PingFunc(db.PingContext), true)
				return nil
			},
			StopFunc: func(context.Context) error {
				return a.db.Close()
			},
		})
		engineRequires = append(engineRequires, "database")
	}

	if cfg.RedisHost != "" {
		a.startup.AddDependency(&startup.Dependency{
			Name: "redis",
			StartFunc: func(ctx context.Context) error {
				client, err := ratelimit.NewClient(ctx, cfg.Redis(), a.logger)
				if err != nil {
					return err
				}
				a.redis = client
				a.health.AddCheck("redis", client, false)
				return nil
			},
			StopFunc: func(context.Context) error {
				return a.redis.Close()
			},
		})
		engineRequires = append(engineRequires, "redis")
	}

	if cfg.KafkaEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name: "kafka",
			StartFunc: func(context.Context) error {
				a.producer = kafka.NewProducer(cfg.Producer(), a.logger)
				return nil
			},
			StopFunc: func(context.Context) error {
				return a.producer.Close()
			},
		})
		engineRequires = append(engineRequires, "kafka")
	}

	a.startup.AddDependency(&startup.Dependency{
		Name:     "engine",
		Requires: engineRequires,
		StartFunc: func(context.Context) error {
			var limiter oracle.Limiter
			if a.redis != nil {
				l, err := ratelimit.NewLimiter(a.redis, "oracle", int64(cfg.OracleRateLimit), cfg.OracleRateLimitWindow)
				if err != nil {
					return err
				}
				limiter = l
			}
			engine, err := NewEngine(cfg, limiter, a.logger)
			if err != nil {
				return err
			}
			a.engine = engine
			return nil
		},
	})

	a.startup.AddDependency(&startup.Dependency{
		Name:     "http",
		Requires: []string{"engine"},
		StartFunc: func(ctx context.Context) error {
			if err := a.registerRoutes(ctx); err != nil {
				return err
			}
			addr := fmt.Sprintf(":%d", cfg.Port)
			go func() {
				a.logger.Infof("Listening on %s", addr)
				if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.serverErr <- err
				}
			}()
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			return a.echo.Shutdown(ctx)
		},
	})
}

// registerRoutes mounts the API once the engine and its stores exist.
func (a *App) registerRoutes(ctx context.Context) error {
	cfg := a.config

	guards := []echo.MiddlewareFunc{middleware.Deadline(time.Duration(cfg.RequestTimeoutSeconds) * time.Second)}
	if cfg.AuthEnabled {
		verifier, err := middleware.NewOIDCVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthClientID)
		if err != nil {
			return err
		}
		guards = append(guards, middleware.Authentication(a.logger, verifier))
	}
	api := a.echo.Group("/api/v1", guards...)

	var emitter *events.Emitter
	if a.producer != nil {
		emitter = events.NewEmitter(a.producer, a.logger)
	}

	var (
		users    search.UserStore
		dupUsers duplicate.UserStore
		resumes  recommendation.ResumeStore
		postings recommendation.PostingStore
	)
	if a.db != nil {
		userRepo := user.NewRepository(a.db, a.logger)
		users, dupUsers = userRepo, userRepo
		resumes = resume.NewRepository(a.db, a.logger)
		postings = jobposting.NewRepository(a.db, a.logger)
	}

	search.Register(api.Group("/search"), search.NewHandler(a.engine.Orchestrator, users, a.logger))
	duplicate.Register(api.Group("/duplicates"), duplicate.NewHandler(a.engine.Detector, a.engine.DuplicateOptions, dupUsers, emitter, a.logger))
	recommendation.Register(api.Group("/recommendations"), recommendation.NewHandler(a.engine.Recommender, a.engine.Criteria, resumes, postings, emitter, a.logger))
	return nil
}

// Run starts every dependency, serves until ctx ends or the server fails,
// then stops everything in reverse order.
func (a *App) Run(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		return err
	}
	a.health.SetReady(true)
	a.logger.WithField("port", a.config.Port).Info("fern is ready")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-a.serverErr:
		a.logger.WithError(runErr).Error("HTTP server failed")
	}

	a.health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.startup.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
