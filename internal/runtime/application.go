// Package runtime wires configuration, storage, the escrow engine and the
// HTTP gateway into a runnable application.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/DeBounty-Network/escrow_layer/internal/config"
	"github.com/DeBounty-Network/escrow_layer/internal/engine"
	"github.com/DeBounty-Network/escrow_layer/internal/gateway"
	"github.com/DeBounty-Network/escrow_layer/internal/metrics"
	"github.com/DeBounty-Network/escrow_layer/internal/query"
	"github.com/DeBounty-Network/escrow_layer/internal/reconciler"
	"github.com/DeBounty-Network/escrow_layer/internal/storage"
	"github.com/DeBounty-Network/escrow_layer/internal/storage/memory"
	"github.com/DeBounty-Network/escrow_layer/internal/storage/postgres"
	"github.com/DeBounty-Network/escrow_layer/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	httpServer *http.Server
	reconciler *reconciler.Reconciler
	db         *sqlx.DB
}

// NewApplication constructs an application instance with default wiring.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewApplicationWithConfig(cfg)
}

// NewApplicationWithConfig wires an application from an explicit config.
func NewApplicationWithConfig(cfg *config.Config) (*Application, error) {
	log := logger.New(cfg.LoggerConfig())

	store, db, err := buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure store: %w", err)
	}

	access, err := config.LoadAccessConfigOrDefault(cfg.AccessFile)
	if err != nil {
		return nil, fmt.Errorf("load access config: %w", err)
	}

	eng := engine.New(store, access.Policy, log)
	svc := query.New(store, log)
	rec := reconciler.New(svc, cfg.ReconcileSchedule, log)

	apiHandler, err := gateway.NewHandler(gateway.Config{
		Engine:    eng,
		Query:     svc,
		Log:       log,
		AuditMax:  cfg.Audit.Max,
		AuditPath: cfg.Audit.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("configure gateway: %w", err)
	}

	auth := gateway.NewAuthenticator(access.Tokens, []string{"/healthz", "/metrics"}, log)
	limiter := gateway.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
	handler := metrics.InstrumentHandler(auth.Handler(limiter.Handler(apiHandler)))

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Application{
		cfg:        cfg,
		log:        log.WithComponent("runtime"),
		httpServer: httpSrv,
		reconciler: rec,
		db:         db,
	}, nil
}

// Run starts the reconciler and HTTP server, blocking until the context is
// cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.reconciler.Start(); err != nil {
		return fmt.Errorf("start reconciler: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", a.httpServer.Addr).Info("HTTP server listening")
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server, the reconciler and the database.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.reconciler.Stop()

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

func buildStore(cfg *config.Config) (storage.LedgerStore, *sqlx.DB, error) {
	switch cfg.Store.Backend {
	case "postgres":
		db, err := openDatabase(cfg.Store)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := postgres.Apply(ctx, db.DB); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		return postgres.New(db), db, nil
	default:
		return memory.New(), nil, nil
	}
}

func openDatabase(cfg config.StoreConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
