package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/catalog"
	"github.com/frahmantamala/trading-panel/internal/core/events"
	"github.com/frahmantamala/trading-panel/internal/form"
	"github.com/frahmantamala/trading-panel/internal/listfetch"
	"github.com/frahmantamala/trading-panel/internal/menu"
	"github.com/frahmantamala/trading-panel/internal/permission"
	"github.com/frahmantamala/trading-panel/internal/session"
	sessionPostgres "github.com/frahmantamala/trading-panel/internal/session/postgres"
	sessionRedis "github.com/frahmantamala/trading-panel/internal/session/redis"
	"github.com/frahmantamala/trading-panel/internal/transport"
	"github.com/frahmantamala/trading-panel/internal/transport/rest"
	"github.com/frahmantamala/trading-panel/internal/transport/swagger"
	"github.com/frahmantamala/trading-panel/internal/upstream"
	"github.com/frahmantamala/trading-panel/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Redis    *goredis.Client
	Router   *chi.Mux
	Bus      *events.EventBus
	Lists    *listfetch.Manager
	Forms    *form.Manager
	Handlers rest.Handlers
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	rest.RegisterAllRoutes(deps.Router, deps.Handlers, deps.Config.Server, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "session_store", deps.Config.Session.Store)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go deps.Lists.Run(sweepCtx, deps.Config.Session.SweepInterval)
	go deps.Forms.Run(sweepCtx, deps.Config.Session.SweepInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		if err := deps.Bus.Drain(ctx); err != nil {
			deps.Logger.Error("Event handlers did not finish", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.Close()
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

// Close releases the session store connections.
func (d *Dependencies) Close() {
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Error("Database close error", "error", err)
		}
		d.DB = nil
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("Redis close error", "error", err)
		}
		d.Redis = nil
	}
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Configure(config.Observability.Logging.Env, config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.L()

	if _, err := swagger.Load(context.Background()); err != nil {
		return nil, err
	}

	deps := &Dependencies{
		Config: config,
		Logger: lg,
		Router: chi.NewRouter(),
		Bus:    events.NewEventBus(lg),
	}

	checkers := map[string]rest.Checker{}
	repo, err := deps.sessionRepository(checkers)
	if err != nil {
		deps.Close()
		return nil, err
	}

	client := upstream.NewClient(upstream.Config{
		BaseURL:    config.Upstream.BaseURL,
		Timeout:    config.Upstream.Timeout,
		RetryCount: config.Upstream.RetryCount,
	}, lg)

	base := transport.NewBaseHandler(lg)
	entities := catalog.Default()

	store := session.NewStore(repo)
	tokens := session.NewTokenService(config.Security.JWTSecret, config.Security.SessionTokenTTL)
	sessionService := session.NewService(store, tokens, client, deps.Bus, lg)

	cache := listfetch.NewCache(config.List.CacheTTL, lg)
	cache.Attach(deps.Bus)
	lists := listfetch.NewManager(client, cache, listfetch.Options{
		DebounceWindow: config.List.DebounceWindow,
		FetchTimeout:   config.List.FetchTimeout,
		PageSize:       config.List.DefaultPageSize,
	}, lg)
	lists.Attach(deps.Bus)

	forms := form.NewManager(client, deps.Bus, config.Upstream.Timeout, lg)
	forms.Attach(deps.Bus)
	deps.Lists, deps.Forms = lists, forms

	deps.Handlers = rest.Handlers{
		Health:        rest.NewHealthHandler(base, checkers),
		Session:       session.NewHandler(base, sessionService),
		Authorization: permission.NewAuthorization(session.SubjectFromContext, lg),
		Menu:          menu.NewHandler(base, menu.Default(), session.SubjectFromContext),
		Lists:         listfetch.NewHandler(base, lists, entities),
		Forms:         form.NewHandler(base, forms, entities),
	}

	return deps, nil
}

// sessionRepository opens the configured session store and registers its
// health check.
func (d *Dependencies) sessionRepository(checkers map[string]rest.Checker) (session.Repository, error) {
	switch d.Config.Session.Store {
	case internal.SessionStorePostgres:
		db, err := initDB(d.Config.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		d.DB = db

		gdb, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: db.DB}), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to open gorm session: %w", err)
		}
		checkers["postgres"] = db.PingContext
		return sessionPostgres.NewSessionRepository(gdb, d.Logger), nil

	case internal.SessionStoreRedis:
		client, err := sessionRedis.NewClient(context.Background(), d.Config.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		d.Redis = client

		repo := sessionRedis.NewSessionRepository(client, d.Config.Redis.Prefix, d.Logger)
		checkers["redis"] = repo.Ping
		return repo, nil

	default:
		d.Logger.Warn("using in-memory session store; sessions are lost on restart")
		return session.NewMemoryRepository(), nil
	}
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
