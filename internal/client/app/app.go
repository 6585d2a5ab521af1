package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/tabchat/internal/client/credstore"
	"github.com/aussiebroadwan/tabchat/internal/client/repository"
	"github.com/aussiebroadwan/tabchat/internal/client/session"
	"github.com/aussiebroadwan/tabchat/internal/client/store"
	"github.com/aussiebroadwan/tabchat/internal/client/store/drivers/sqlite"
	"github.com/aussiebroadwan/tabchat/pkg/authapi"
	"github.com/aussiebroadwan/tabchat/pkg/cryptox"
	"github.com/aussiebroadwan/tabchat/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application holds the wired client: local database, auth gateway, session
// manager and repositories.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	registry *prometheus.Registry

	Gateway     *authapi.Client
	Credentials *credstore.Store
	Session     *session.Manager
	Friends     *repository.Friends
	Messages    *repository.Messages
}

// New opens the local database and wires every component.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tabchat",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  cfg.LogOutput,
		}),
		registry: prometheus.NewRegistry(),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initComponents(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Close releases the local database.
func (app *Application) Close() error {
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// initDatabase opens the database and applies migrations
func (app *Application) initDatabase() error {
	dsn := app.cfg.DatabaseFile
	if dsn != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	}

	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Debug("database migrations applied", "file", app.cfg.DatabaseFile)
	return nil
}

func (app *Application) initComponents() error {
	masterKey, err := app.masterKey()
	if err != nil {
		return err
	}

	kv, err := credstore.NewEncryptedPreferences(app.db.Preferences(), masterKey)
	if err != nil {
		return err
	}
	app.Credentials = credstore.New(kv, app.logger)

	app.Gateway = authapi.NewClient(app.cfg.APIURL, app.cfg.ClientID)
	app.Gateway.HTTPClient = &http.Client{
		Timeout:   app.cfg.HTTPTimeout,
		Transport: slogx.NewTransport(http.DefaultTransport, app.logger),
	}
	if app.cfg.RateLimit > 0 {
		app.Gateway.Limiter = rate.NewLimiter(rate.Limit(app.cfg.RateLimit), max(1, int(app.cfg.RateLimit)))
	}

	app.Session = session.NewManager(app.Credentials, app.Gateway, app.logger, session.Options{
		AccessTokenTTL: app.cfg.AccessTokenTTL,
		Metrics:        session.NewMetrics(app.registry),
	})

	app.Friends = repository.NewFriends(app.db, app.logger)
	app.Messages = repository.NewMessages(app.db, app.Friends, app.logger)
	return nil
}

func (app *Application) masterKey() ([]byte, error) {
	if app.cfg.MasterKey != "" {
		return []byte(app.cfg.MasterKey), nil
	}

	key, err := cryptox.LoadOrCreateKeyFile(app.cfg.MasterKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}
	return key, nil
}

// MetricsHandler serves the session metrics in the Prometheus text format.
func (app *Application) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{})
}

// ServeMetrics serves MetricsHandler on addr until ctx is done, then shuts
// the server down gracefully.
func (app *Application) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.MetricsHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.ListenAndServe()
	}()

	app.logger.Info("metrics server starting", "addr", addr)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("graceful metrics server shutdown failed", "error", err)
		return server.Close()
	}
	return nil
}
