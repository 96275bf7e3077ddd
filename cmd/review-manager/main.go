// cmd/review-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"review-workers/internal/api"
	awsclient "review-workers/internal/common/aws"
	"review-workers/internal/common/camunda"
	"review-workers/internal/common/config"
	"review-workers/internal/common/database"
	httpclient "review-workers/internal/common/http"
	"review-workers/internal/common/logger"
	"review-workers/internal/common/observability"
	"review-workers/internal/common/platform"
	"review-workers/internal/gateway"
	"review-workers/internal/models"
	"review-workers/internal/scheduler"
	"review-workers/internal/search"
	"review-workers/internal/store"
	dispatchnotification "review-workers/internal/workers/notifications/dispatch-notification"
	draftreplies "review-workers/internal/workers/replies/draft-replies"
	admitreviews "review-workers/internal/workers/reviews/admit-reviews"
	fetchreviews "review-workers/internal/workers/reviews/fetch-reviews"
	syncreviews "review-workers/internal/workers/reviews/sync-reviews"
	"review-workers/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting review manager...", zap.String("environment", cfg.App.Environment))

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		log.Warn("otel meters unavailable", map[string]interface{}{"error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 10, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.AutoMigrate {
		if err := store.Migrate(ctx, pg.DB); err != nil {
			zapLog.Fatal("migration failed", zap.Error(err))
		}
	}

	var st store.Store = store.NewPostgres(pg.DB)
	ready := []api.Pinger{st}

	// --- Redis business cache (optional) ---
	if rdb := database.NewRedis(cfg.Database.Redis); rdb != nil {
		if err := rdb.Ping(ctx); err != nil {
			log.Warn("redis unavailable, business cache disabled", map[string]interface{}{"error": err.Error()})
			_ = rdb.Close()
		} else {
			defer rdb.Close()
			st = store.WithBusinessCache(st, rdb.Client, config.GetDuration(cfg.Database.Redis.CacheTTL), log)
			zapLog.Info("Redis business cache enabled")
		}
	}

	// --- Elasticsearch review index (optional) ---
	var indexer *search.Indexer
	esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		log.Warn("elasticsearch client failed, search disabled", map[string]interface{}{"error": err.Error()})
	} else if esClient != nil {
		indexer = search.NewIndexer(esClient.Client, cfg.Database.Elasticsearch.ReviewIndex, log)
		if err := indexer.EnsureIndex(ctx); err != nil {
			log.Warn("review index not ready", map[string]interface{}{"error": err.Error()})
		}
		ready = append(ready, esClient)
	}

	// --- Notification senders ---
	var (
		smsSender   dispatchnotification.SMSSender
		emailSender dispatchnotification.EmailSender
		webhook     *httpclient.Client
	)
	if cfg.Notifications.SMS.Enabled || cfg.Notifications.Email.Enabled {
		awsCfg, err := awsclient.LoadConfig(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws config failed", zap.Error(err))
		}
		if cfg.Notifications.SMS.Enabled {
			smsSender = awsclient.NewSMSSender(awsCfg, cfg.Notifications.SMS.SenderID)
		}
		if cfg.Notifications.Email.Enabled {
			emailSender = awsclient.NewEmailSender(awsCfg, cfg.Notifications.Email.FromEmail)
		}
	}
	if cfg.Notifications.Webhook.Enabled {
		webhook = httpclient.NewClient(config.GetDuration(cfg.Notifications.AttemptTimeout), cfg.Notifications.Webhook.UserAgent)
	}

	// --- Components ---
	platforms := platform.NewRegistry(platform.NewGoogleClient(platform.GoogleConfig{
		BaseURL: cfg.Platforms.Google.BaseURL,
		APIKey:  cfg.Platforms.Google.APIKey,
		Timeout: config.GetDuration(cfg.Platforms.Google.Timeout),
	}, nil))

	fetcher := fetchreviews.NewService(&fetchreviews.Config{
		DefaultLimit: cfg.Sync.DefaultLimit,
		MaxLimit:     cfg.Sync.MaxLimit,
		MaxPages:     fetchreviews.LoadConfig().MaxPages,
	}, platforms, st, log)

	gate := admitreviews.NewService(&admitreviews.Config{
		MaxConsecutiveFailures: cfg.Sync.MaxConsecutiveFailures,
	}, st, log)

	dispatchCfg := &dispatchnotification.Config{
		MaxAttempts:    cfg.Notifications.MaxAttempts,
		BaseDelay:      config.GetDuration(cfg.Notifications.BaseDelay),
		MaxDelay:       config.GetDuration(cfg.Notifications.MaxDelay),
		AttemptTimeout: config.GetDuration(cfg.Notifications.AttemptTimeout),
		Concurrency:    cfg.Notifications.Concurrency,
		Timeout:        config.GetDuration(config.GetWorkerConfig(cfg, dispatchnotification.TaskType).Timeout),
		StaleAfter:     config.GetDuration(cfg.Notifications.StaleAfter),
	}
	dispatcher := dispatchnotification.NewService(dispatchCfg, st, st,
		dispatchnotification.NewSenders(smsSender, emailSender, webhook), log)

	drafter := draftreplies.NewHandler(&draftreplies.Config{
		GenAIBaseURL: cfg.APIs.GenAI.BaseURL,
		APIKey:       cfg.APIs.GenAI.APIKey,
		Model:        cfg.APIs.GenAI.Model,
		Timeout:      config.GetDuration(cfg.APIs.GenAI.Timeout),
		MaxTokens:    cfg.APIs.GenAI.MaxTokens,
		Temperature:  cfg.APIs.GenAI.Temperature,
	}, nil, st, log)

	syncCfg := &syncreviews.Config{
		DefaultPlatform:   syncreviews.LoadConfig().DefaultPlatform,
		AutoDraft:         cfg.Sync.AutoDraft,
		RunTimeout:        config.GetDuration(cfg.Sync.RunTimeout),
		FanOutConcurrency: cfg.Notifications.Concurrency,
		RecoveryGrace:     config.GetDuration(cfg.Sync.RecoveryGrace),
		RecoveryBatch:     cfg.Sync.RecoveryBatch,
	}
	syncer := syncreviews.NewService(syncCfg, syncreviews.Dependencies{
		Fetcher:       fetcher,
		Gate:          gate,
		Businesses:    st,
		Drafter:       drafter,
		Dispatcher:    dispatcher,
		Indexer:       indexer,
		FanOutLog:     st,
		Observability: obs,
		Logger:        log,
	})

	gw := gateway.New(gateway.Config{
		Sources: []gateway.Source{
			{Name: models.PlatformZapier, Header: cfg.Gateway.ZapierHeader, Token: cfg.Gateway.ZapierToken},
			{Name: models.PlatformQuickBooks, Header: cfg.Gateway.QuickBooksHeader, Token: cfg.Gateway.QuickBooksToken},
		},
		AllowBusinessSecret: cfg.Gateway.AllowBusinessAuth,
		MaxBodyBytes:        cfg.Server.MaxBodyBytes,
	}, st, log)

	deps := api.Dependencies{
		Gateway:      gw,
		Processor:    gateway.NewProcessor(st, gate, syncer, dispatcher, log),
		Drafter:      drafter,
		Syncer:       syncer,
		Replies:      drafter,
		Ready:        ready,
		Logger:       log,
		BodyLimit:    cfg.Server.MaxBodyBytes,
		MaxSyncLimit: cfg.Sync.MaxLimit,
	}
	// a nil *Indexer would still be a non-nil Searcher
	if indexer != nil {
		deps.Searcher = indexer
	}

	// --- Scheduled sync ---
	var sched *scheduler.Scheduler
	if cfg.Sync.Enabled {
		interval, _ := time.ParseDuration(cfg.Sync.Interval) // validated by config.Load
		sched = scheduler.New(scheduler.Config{
			Interval:    interval,
			Concurrency: cfg.Sync.Concurrency,
			Platforms:   platforms.Names(),
			Limit:       cfg.Sync.DefaultLimit,
		}, st, syncer, log)
		if err := sched.Start(); err != nil {
			zapLog.Fatal("scheduler failed to start", zap.Error(err))
		}
	}

	// --- Zeebe workers (optional) ---
	var (
		zeebe   *camunda.Client
		workers []*camunda.Worker
	)
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		}, log)
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		handlers := map[string]camunda.JobHandler{
			syncreviews.TaskType:          syncreviews.NewHandler(syncCfg, syncer, log),
			draftreplies.TaskType:         drafter,
			dispatchnotification.TaskType: dispatchnotification.NewHandler(dispatchCfg, dispatcher, log),
		}
		workers = startWorkers(cfg, zeebe, handlers, log)
	}

	// --- HTTP API ---
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if sched != nil {
		sched.Stop()
	}
	for _, w := range workers {
		w.Stop()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("otel shutdown failed", zap.Error(err))
	}

	zapLog.Info("Review manager stopped gracefully")
}

// startWorkers opens one job worker per task type the activity catalog marks
// as implemented.
func startWorkers(cfg *config.Config, zeebe *camunda.Client, handlers map[string]camunda.JobHandler, log logger.Logger) []*camunda.Worker {
	catalog, err := registry.Default()
	if err != nil {
		log.Error("activity registry invalid, no workers started", map[string]interface{}{"error": err.Error()})
		return nil
	}

	for name := range cfg.Workers {
		if catalog.Find(name) == nil {
			log.Warn("worker configured for unknown task type", map[string]interface{}{"taskType": name})
		}
	}

	var workers []*camunda.Worker
	for _, taskType := range catalog.TaskTypes() {
		handler, ok := handlers[taskType]
		if !ok {
			log.Warn("no handler for task type", map[string]interface{}{"taskType": taskType})
			continue
		}
		if w := camunda.StartWorker(zeebe.GetClient(), taskType, config.GetWorkerConfig(cfg, taskType), handler, log); w != nil {
			workers = append(workers, w)
		}
	}
	return workers
}
