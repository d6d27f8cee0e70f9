package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/convention-registry/member-api/internal/adapters/httpapi"
	memidempotency "github.com/convention-registry/member-api/internal/adapters/memory/idempotency"
	memkeyrepo "github.com/convention-registry/member-api/internal/adapters/memory/keyrepo"
	memmaillist "github.com/convention-registry/member-api/internal/adapters/memory/maillist"
	memmemberrepo "github.com/convention-registry/member-api/internal/adapters/memory/memberrepo"
	memnotifier "github.com/convention-registry/member-api/internal/adapters/memory/notifier"
	postgres "github.com/convention-registry/member-api/internal/adapters/postgres"
	pgidempotency "github.com/convention-registry/member-api/internal/adapters/postgres/idempotency"
	pgkeyrepo "github.com/convention-registry/member-api/internal/adapters/postgres/keyrepo"
	pgmemberrepo "github.com/convention-registry/member-api/internal/adapters/postgres/memberrepo"
	"github.com/convention-registry/member-api/internal/adapters/webhook"
	"github.com/convention-registry/member-api/internal/app/mailsync"
	"github.com/convention-registry/member-api/internal/app/people"
	"github.com/convention-registry/member-api/internal/platform/auth/sessiontoken"
	platformclock "github.com/convention-registry/member-api/internal/platform/clock"
	"github.com/convention-registry/member-api/internal/platform/config"
	"github.com/convention-registry/member-api/internal/platform/logger"
	"github.com/convention-registry/member-api/internal/platform/metrics"
	idempotencyport "github.com/convention-registry/member-api/internal/ports/out/idempotency"
	keyrepoport "github.com/convention-registry/member-api/internal/ports/out/keyrepo"
	mailsyncport "github.com/convention-registry/member-api/internal/ports/out/mailsync"
	memberrepoport "github.com/convention-registry/member-api/internal/ports/out/memberrepo"
	notifierport "github.com/convention-registry/member-api/internal/ports/out/notifier"
)

// purger is implemented by idempotency stores that can drop expired records.
type purger interface {
	Purge(ctx context.Context) (int64, error)
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg, err := config.LoadAppConfigFromEnv()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	lg, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.AppConfig, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.New(reg)

	// Auth configuration:
	// - Production: require SESSION_TOKEN_* env vars and enforce bearer auth
	// - Local dev: set AUTH_MODE=dev to trust X-Debug-Email / X-Debug-Roles
	var authMW func(http.Handler) http.Handler
	switch cfg.AuthMode {
	case "dev":
		authMW = httpapi.NewDevAuthMiddleware(os.Getenv("DEV_EMAIL"))
		lg.Warn("dev auth enabled; requests are trusted without verification")
	default:
		tokCfg, err := config.LoadSessionTokenConfigFromEnv()
		if err != nil {
			return fmt.Errorf("invalid auth config: %w", err)
		}
		authMW = httpapi.NewAuthMiddleware(sessiontoken.New(tokCfg))
	}

	var (
		memberRepo memberrepoport.Repository
		keyStore   keyrepoport.Store
		idemStore  idempotencyport.Store
		mailList   mailsyncport.Provider
		notify     notifierport.Notifier
	)

	switch cfg.StorageBackend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{})
		if err != nil {
			return fmt.Errorf("invalid postgres config: %w", err)
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		memberRepo = pgmemberrepo.NewRepo(pool)
		keyStore = pgkeyrepo.NewStore(pool)
		idemStore = pgidempotency.NewStore(pool, cfg.IdempotencyTTL)
	default:
		memberRepo = memmemberrepo.NewRepo()
		keyStore = memkeyrepo.NewStore()
		idemStore = memidempotency.NewStore(cfg.IdempotencyTTL)
	}

	if cfg.Notify.URL != "" {
		c, err := webhook.NewClient(cfg.Notify.URL, cfg.Notify.Timeout)
		if err != nil {
			return fmt.Errorf("notify webhook: %w", err)
		}
		notify = webhook.NewNotifier(c)
	} else {
		lg.Warn("NOTIFY_WEBHOOK_URL not set; account messages are kept in memory only")
		notify = memnotifier.NewOutbox()
	}
	if cfg.MailSync.URL != "" {
		c, err := webhook.NewClient(cfg.MailSync.URL, cfg.MailSync.Timeout)
		if err != nil {
			return fmt.Errorf("mailsync webhook: %w", err)
		}
		mailList = webhook.NewMailList(c)
	} else {
		lg.Warn("MAILSYNC_WEBHOOK_URL not set; mailing list is kept in memory only")
		mailList = memmaillist.NewList()
	}

	syncer := mailsync.NewService(memberRepo, mailList, cfg.MailSync.QueueSize, lg, met)
	syncer.Start()

	sched := mailsync.NewScheduler(lg)
	if err := sched.Add(mailsync.Job{
		Name:    "mailsync-sweep",
		Spec:    cfg.MailSync.SweepSchedule,
		Timeout: 30 * time.Minute,
		Run:     syncer.Sweep,
	}); err != nil {
		return err
	}
	if p, ok := idemStore.(purger); ok {
		if err := sched.Add(mailsync.Job{
			Name:    "idempotency-purge",
			Spec:    cfg.IdempotencyPurgeSchedule,
			Timeout: time.Minute,
			Run: func(ctx context.Context) error {
				n, err := p.Purge(ctx)
				if err == nil && n > 0 {
					lg.Info("idempotency records purged", zap.Int64("count", n))
				}
				return err
			},
		}); err != nil {
			return err
		}
	}
	sched.Start()

	peopleSvc := people.NewService(people.Deps{
		Repo:     memberRepo,
		Keys:     keyStore,
		Notifier: notify,
		MailSync: syncer,
		Clock:    platformclock.NewSystemClock(),
		Logger:   lg.Named("people"),
		Metrics:  met,
	}, people.Options{PaidPaperPubs: cfg.PaidPaperPubs})

	api := httpapi.NewServer(peopleSvc, idemStore, lg.Named("http"))
	handler := httpapi.NewRouterWithOptions(api, httpapi.RouterOptions{
		AuthMiddleware: authMW,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("api listening",
			zap.String("addr", srv.Addr),
			zap.String("storage", cfg.StorageBackend),
			zap.String("auth", cfg.AuthMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		lg.Warn("scheduler shutdown", zap.Error(err))
	}
	// Pending mail-list requests are drained after the last handler returned.
	if err := syncer.Stop(shutdownCtx); err != nil {
		lg.Warn("mailsync shutdown", zap.Error(err))
	}
	return nil
}
