// Package server wires configuration, storage, integrations and the HTTP and
// gRPC front ends into a runnable application with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/zoneboard/internal/logging"
	"github.com/dmitrijs2005/zoneboard/internal/server/auth"
	"github.com/dmitrijs2005/zoneboard/internal/server/config"
	"github.com/dmitrijs2005/zoneboard/internal/server/entitlements"
	"github.com/dmitrijs2005/zoneboard/internal/server/googleplay"
	"github.com/dmitrijs2005/zoneboard/internal/server/httpapi"
	"github.com/dmitrijs2005/zoneboard/internal/server/mailer"
	"github.com/dmitrijs2005/zoneboard/internal/server/purge"
	"github.com/dmitrijs2005/zoneboard/internal/server/ratelimit"
	"github.com/dmitrijs2005/zoneboard/internal/server/receipts"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/zoneboard/internal/server/services"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/zoneboard/internal/server/grpc"
)

const magicLinkLimiterPrefix = "zoneboard:magiclink"

type App struct {
	config *config.Config
	logger logging.Logger

	db    *sql.DB
	redis redis.UniversalClient

	httpServer *http.Server
	grpcServer *gs.GRPCServer
	purger     *purge.Scheduler
}

// NewApp validates c and connects every dependency. Optional integrations
// left unconfigured are replaced by their disabled variants.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(c.Env, os.Stdout)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}

	if err := app.init(ctx); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	if err := app.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	var limiter ratelimit.Limiter = ratelimit.Disabled{}
	if c.RedisURL != "" && c.MagicLinkMaxRequests > 0 {
		client, err := ratelimit.NewRedisClient(ctx, c.RedisURL)
		if err != nil {
			return fmt.Errorf("redis init error: %w", err)
		}
		app.redis = client
		limiter = ratelimit.NewRedisLimiter(client, magicLinkLimiterPrefix, c.MagicLinkMaxRequests, c.MagicLinkWindow)
	} else {
		app.logger.Warn(ctx, "magic link rate limiting disabled")
	}

	var mail mailer.Mailer
	if c.SMTPHost != "" {
		mail = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			Username: c.SMTPUsername,
			Password: c.SMTPPassword,
			From:     c.SMTPFrom,
		})
	} else {
		app.logger.Warn(ctx, "smtp not configured, magic links are logged")
		mail = mailer.NewLogMailer(app.logger)
	}

	var verifier entitlements.Verifier
	if c.GooglePlayCredentialsFile != "" {
		verifier = googleplay.NewClient(c.GooglePlayPackageName, c.GooglePlayCredentialsFile)
	} else {
		app.logger.Warn(ctx, "google play credentials not configured, purchase verification disabled")
	}

	var archive receipts.Archive
	if c.S3Bucket != "" {
		s3a, err := receipts.NewS3Archive(ctx, receipts.S3Config{
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return fmt.Errorf("receipt archive init error: %w", err)
		}
		archive = s3a
	}

	signer, err := auth.NewCertificateSigner([]byte(c.CertificateSecret))
	if err != nil {
		return err
	}

	as := services.NewAuthService(app.db, rm, c, limiter, mail, app.logger)
	es := services.NewEntitlementService(app.db, rm, c, signer, verifier, archive, app.logger)
	ss := services.NewSettingsService(app.db, rm, c, app.logger)

	handler := httpapi.NewRouter(
		httpapi.NewHandlers(as, es, ss, c.SettingsMaxBytes),
		httpapi.Options{Logger: app.logger, Timeout: c.RequestTimeout, Ready: app.db},
	)
	app.httpServer = &http.Server{Addr: c.HTTPAddr, Handler: handler}

	if c.GRPCAddr != "" {
		app.grpcServer = gs.NewGRPCServer(c.GRPCAddr, app.logger, app.db)
	}

	app.purger = purge.NewScheduler(
		services.NewPurgeStore(app.db, rm),
		purge.Config{Interval: c.PurgeInterval, RetentionDays: c.PurgeRetentionDays},
		app.logger,
	)
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	app.logger.Info(ctx, "Starting HTTP server", "address", app.httpServer.Addr)

	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) stopHTTPServer() {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()

	app.logger.Info(ctx, "Stopping HTTP server...")
	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Error(ctx, "http shutdown", "error", err)
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpcServer.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a termination signal arrives or ctx is cancelled, then
// drains the servers, waits for an in-flight purge sweep and closes the
// connections.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	app.purger.Start(ctx)

	<-ctx.Done()

	app.stopHTTPServer()
	app.purger.Stop()
	wg.Wait()

	app.close()
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(context.Background(), "redis close", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(context.Background(), "db close", "error", err)
	}
}
