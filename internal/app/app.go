// Package app wires configuration, storage and services together for the
// server and the command line tool.
package app

import (
	"context"
	"fmt"
	"time"

	"housing-backend/internal/archive"
	"housing-backend/internal/auth"
	"housing-backend/internal/cache"
	"housing-backend/internal/config"
	"housing-backend/internal/database"
	"housing-backend/internal/db"
	"housing-backend/internal/handlers"
	"housing-backend/internal/health"
	h "housing-backend/internal/http"
	"housing-backend/internal/logger"
	"housing-backend/internal/mail"
	"housing-backend/internal/middleware"
	"housing-backend/internal/pdf"
	"housing-backend/internal/power"
	"housing-backend/internal/repositories"
	"housing-backend/internal/services"
	"housing-backend/internal/timeutil"
	"housing-backend/migrations"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type App struct {
	Config *config.Config
	Pool   *pgxpool.Pool
	Redis  *redis.Client
	Store  *repositories.PgStore
	Locker *cache.Locker
	Files  archive.Archive
	JWT    *auth.JWTManager

	Jobs      *services.JobService
	Billing   *services.BillingService
	Invoices  *services.InvoiceService
	Sepa      *services.SepaExportService
	Payments  *services.PaymentImportService
	Customers *services.CustomerService

	// Power is nil when no power API is configured.
	Power *power.Client
}

// New connects to PostgreSQL, Redis (when configured) and the file archive
// and builds the services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := timeutil.SetLocation(cfg.Billing.Timezone); err != nil {
		return nil, fmt.Errorf("billing.timezone: %w", err)
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		pool.Close()
		return nil, err
	}

	files, err := archive.New(ctx, cfg.Archive, cfg.Files.Dir)
	if err != nil {
		pool.Close()
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, fmt.Errorf("archive: %w", err)
	}

	a := &App{
		Config: cfg,
		Pool:   pool,
		Redis:  redisClient,
		Store:  repositories.NewPgStore(pool),
		Locker: cache.NewLocker(redisClient),
		Files:  files,
		JWT:    auth.NewJWTManager(cfg),
	}
	a.buildServices()
	return a, nil
}

func (a *App) buildServices() {
	cfg := a.Config
	a.Jobs = services.NewJobService(a.Store)
	a.Billing = services.NewBillingService(a.Store, a.Jobs, a.Locker, cfg.Billing)

	renderer := pdf.NewInvoiceRenderer(cfg.Billing.CompanyName, cfg.Billing.SenderLine, cfg.Payments.ReferencePrefix, cfg.Billing.InvoiceFooter...)
	a.Invoices = services.NewInvoiceService(a.Store, a.Jobs, renderer, a.Files, mail.New(cfg.Mail), a.Locker)
	a.Invoices.CompanyName = cfg.Billing.CompanyName
	a.Invoices.BCC = cfg.Mail.BCC
	a.Invoices.ReferencePrefix = cfg.Payments.ReferencePrefix

	a.Sepa = services.NewSepaExportService(a.Store, a.Jobs, a.Files, a.Locker, cfg.Sepa)
	a.Payments = services.NewPaymentImportService(a.Store, a.Jobs, a.Locker, cfg.Payments.Currency, cfg.Payments.ReferencePrefix)
	a.Customers = services.NewCustomerService(a.Store)

	if cfg.Power.APIURL != "" {
		a.Power = power.NewClient(cfg.Power.APIURL, cfg.Power.User, cfg.Power.Pass,
			time.Duration(cfg.Power.TimeoutSeconds)*time.Second)
	}
}

// Migrate applies the embedded schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	return database.NewMigratorWithFS(a.Pool, migrations.FS, ".").RunMigrations(ctx)
}

// Router builds the HTTP API.
func (a *App) Router() *mux.Router {
	var redisPinger health.Pinger
	if a.Locker.Enabled() {
		redisPinger = a.Locker
	}

	return h.NewRouter(
		handlers.NewBillingHandler(a.Billing),
		handlers.NewInvoiceHandler(a.Invoices, a.Files),
		handlers.NewSepaHandler(a.Sepa),
		handlers.NewPaymentHandler(a.Payments),
		handlers.NewCustomerHandler(a.Customers),
		handlers.NewHealthHandler(health.NewHealthChecker(a.Pool, redisPinger)),
		middleware.NewAuthMiddleware(a.JWT),
		middleware.NewCORS(a.Config),
	)
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log := logger.WithComponent("app")
			log.Warn().Err(err).Msg("redis close")
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
