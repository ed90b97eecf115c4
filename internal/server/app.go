// Package server initializes and runs the application server. It wires
// configuration, the database and migrations, the identity verifier, the
// vendor billing clients and the service layer, starts the HTTP endpoint and
// the background entitlement sweep, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sarbazinfo/sarbaz-server/internal/cryptox"
	"github.com/sarbazinfo/sarbaz-server/internal/identity"
	"github.com/sarbazinfo/sarbaz-server/internal/jws"
	"github.com/sarbazinfo/sarbaz-server/internal/logging"
	"github.com/sarbazinfo/sarbaz-server/internal/server/api"
	"github.com/sarbazinfo/sarbaz-server/internal/server/billing"
	"github.com/sarbazinfo/sarbaz-server/internal/server/config"
	"github.com/sarbazinfo/sarbaz-server/internal/server/repositories/repomanager"
	"github.com/sarbazinfo/sarbaz-server/internal/server/services"
)

const dbPingTimeout = 5 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	httpSrv *api.Server
	sync    *services.SyncService
}

// NewApp builds the full object graph. Every client is constructed exactly
// once here and injected; a missing secret, root certificate or credential
// file fails construction so the server never starts in a partial state.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewDefault()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	verifier, err := identity.NewGoogleVerifier(cfg.GoogleClientID)
	if err != nil {
		return nil, err
	}

	credentials, err := os.ReadFile(cfg.GoogleCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading google credentials: %w", err)
	}
	google, err := billing.NewGoogleClient(ctx, credentials, cfg.GooglePackageName, cfg.GoogleSubscriptionID, cfg.VendorTimeout)
	if err != nil {
		return nil, err
	}

	root, err := cryptox.LoadRootCertificate(cfg.AppleRootCertFile)
	if err != nil {
		return nil, err
	}
	apple := billing.NewAppleClient(jws.NewDecoder(root, billing.AppleAllowedAlgorithms), cfg.AppleBundleID, cfg.AppleProductID)

	authService := services.NewAuthService(db, rm, verifier, logger, cfg)
	billingService := services.NewBillingService(db, rm, google, apple, logger)
	syncService := services.NewSyncService(db, rm, billingService, google, logger, cfg.SyncInterval)
	completer := services.NewHTTPCompleter(cfg.AIUpstreamURL, cfg.AIUpstreamKey, cfg.AIUpstreamTimeout)
	aiService := services.NewAIService(db, rm, completer, logger, cfg)
	appInfoService := services.NewAppInfoService(ctx, cfg.AppInfoFile, logger)

	handler := api.NewHandler(authService, billingService, aiService, appInfoService, db, logger)
	httpSrv := api.NewServer(cfg.EndpointAddr, handler, logger, cfg.ShutdownTimeout)

	return &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		httpSrv: httpSrv,
		sync:    syncService,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until a signal arrives or the HTTP server fails, then waits for
// the server and the sweep to drain before closing the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sync.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.httpSrv.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
	app.logger.Info(ctx, "App stopped")
}
