// Package server builds the application's dependency graph from config and
// runs the long-lived service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/acquire"
	"github.com/JakeFAU/pagewatch/internal/api"
	"github.com/JakeFAU/pagewatch/internal/check"
	"github.com/JakeFAU/pagewatch/internal/clock/system"
	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/dispatcher"
	"github.com/JakeFAU/pagewatch/internal/evaluate"
	"github.com/JakeFAU/pagewatch/internal/extract"
	collyfetcher "github.com/JakeFAU/pagewatch/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/pagewatch/internal/fetcher/headless"
	"github.com/JakeFAU/pagewatch/internal/hash/sha256"
	"github.com/JakeFAU/pagewatch/internal/headless/detector"
	"github.com/JakeFAU/pagewatch/internal/id/uuid"
	"github.com/JakeFAU/pagewatch/internal/intake"
	"github.com/JakeFAU/pagewatch/internal/judge"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/policy/ratelimit"
	logpublisher "github.com/JakeFAU/pagewatch/internal/publisher/log"
	memorypublisher "github.com/JakeFAU/pagewatch/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/pagewatch/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/pagewatch/internal/queue/memory"
	"github.com/JakeFAU/pagewatch/internal/rules"
	"github.com/JakeFAU/pagewatch/internal/scheduler"
	gcsstorage "github.com/JakeFAU/pagewatch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/pagewatch/internal/storage/local"
	memoryStorage "github.com/JakeFAU/pagewatch/internal/storage/memory"
	pgstore "github.com/JakeFAU/pagewatch/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/pagewatch/internal/storage/sqlite"
	"github.com/JakeFAU/pagewatch/internal/telemetry"
	"github.com/JakeFAU/pagewatch/internal/watch"
	"github.com/JakeFAU/pagewatch/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store        watch.MonitorStore
	orchestrator *check.Orchestrator
	intake       *intake.Service
	scheduler    *scheduler.Scheduler
	queue        *queueMemory.Queue
	dispatch     *dispatcher.Dispatcher
	apiServer    *api.Server

	closers        []func(context.Context) error
	tracerProvider *sdktrace.TracerProvider
}

// Build creates the application's dependencies. The logger is owned by the
// caller.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("store", cfg.Store.Backend),
		zap.String("notify", cfg.Notify.Backend),
		zap.String("artifacts", cfg.Artifacts.Backend),
		zap.String("judge_provider", cfg.Judge.Provider),
		zap.String("policy", cfg.Check.Policy),
	)
	metrics.Init()

	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			ProjectID:   cfg.Telemetry.ProjectID,
		})
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		app.tracerProvider = tp
	}

	built := false
	defer func() {
		if !built {
			app.closeInfrastructure(context.Background())
		}
	}()

	var err error
	if app.store, err = setupStore(ctx, app); err != nil {
		return nil, err
	}
	blobs, err := setupBlobStore(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	j, err := setupJudge(app)
	if err != nil {
		return nil, err
	}
	acq, err := setupAcquirer(app)
	if err != nil {
		return nil, err
	}

	clock := system.New()
	app.orchestrator = check.New(check.Deps{
		Store:     app.store,
		Acquirer:  acq,
		Extractor: extract.New(j, logger),
		Rules:     rules.NewCache(j, app.store, logger),
		Evaluator: evaluate.New(j, cfg.Judge.VerdictCacheTTL, logger),
		Publisher: publisher,
		Blobs:     blobs,
		Hasher:    sha256.New(),
		Clock:     clock,
	}, check.Config{
		Policy:                 check.Policy(cfg.Check.Policy),
		LowConfidence:          cfg.Check.LowConfidence,
		VisionConfidence:       cfg.Check.VisionConfidence,
		RuleConfidence:         cfg.Check.RuleConfidence,
		DefaultIntervalSeconds: cfg.Check.DefaultIntervalSeconds,
		NotifyMode:             check.NotifyMode(cfg.Check.NotifyMode),
		Topic:                  cfg.Notify.Topic,
		Subject:                cfg.Notify.Subject,
		ArtifactPrefix:         cfg.Artifacts.Prefix,
	}, logger)

	app.scheduler = scheduler.New(logger)
	app.queue = queueMemory.NewQueue(cfg.Check.QueueDepth)
	workers := make([]*worker.Worker, 0, cfg.Check.Workers)
	for i := 0; i < cfg.Check.Workers; i++ {
		workers = append(workers, worker.New(i, app.queue, app.orchestrator, app.scheduler, worker.Config{
			CheckTimeout: cfg.Check.Timeout,
		}, logger))
	}
	app.dispatch = dispatcher.New(app.queue, workers, clock, logger)

	app.intake = intake.NewService(
		app.store,
		intake.NewInterpreter(j, cfg.Check.DefaultIntervalSeconds, logger),
		uuid.New(),
		clock,
		app.scheduler,
		app.dispatch.TaskFor,
		logger,
	)

	app.apiServer = api.NewServer(api.Deps{
		Store:     app.store,
		Creator:   app.intake,
		Checker:   app.orchestrator,
		Triggerer: app.scheduler,
		Submitter: app.dispatch,
		Jobs:      app.scheduler,
		Ready:     storeReady(app.store),
	}, api.Config{
		RequestTimeout: cfg.Server.RequestTimeout,
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
	}, logger)

	built = true
	return app, nil
}

// Check runs one check synchronously.
func (a *App) Check(ctx context.Context, req watch.CheckRequest) watch.CheckOutcome {
	return a.orchestrator.Check(ctx, req)
}

// CreateMonitor interprets text into a stored monitor.
func (a *App) CreateMonitor(ctx context.Context, text, rawURL string) (watch.Monitor, bool, error) {
	m, created, err := a.intake.Create(ctx, text, rawURL)
	if err != nil {
		return watch.Monitor{}, false, fmt.Errorf("create monitor: %w", err)
	}
	return m, created, nil
}

// Handler exposes the HTTP API, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the scheduler, workers, and HTTP server and blocks until the
// context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.scheduler.Start(ctx)
	restored, err := a.scheduler.Restore(ctx, a.store, func(m watch.Monitor) watch.Task {
		return a.dispatch.TaskFor(m.ID)
	})
	if err != nil {
		return fmt.Errorf("restore schedule: %w", err)
	}
	a.logger.Info("schedule restored", zap.Int("monitors", restored))

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Check.Workers))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownTimeout := a.cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.scheduler.Wait()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers still running at shutdown deadline")
	}

	return a.Close(shutdownCtx)
}

// Close releases every external client.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure(ctx)
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func setupStore(ctx context.Context, app *App) (watch.MonitorStore, error) {
	cfg := app.cfg.Store
	switch cfg.Backend {
	case "postgres":
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:             cfg.DSN,
			Table:           cfg.Table,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres monitor store init failed: %w", err)
		}
		app.onClose(func(context.Context) error {
			store.Close()
			return nil
		})
		if cfg.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("postgres migrate failed: %w", err)
			}
		}
		app.logger.Info("using postgres monitor store", zap.String("table", cfg.Table))
		return store, nil
	case "sqlite":
		store, err := sqlitestore.New(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite monitor store init failed: %w", err)
		}
		app.onClose(func(context.Context) error { return store.Close() })
		app.logger.Info("using sqlite monitor store", zap.String("path", cfg.Path))
		return store, nil
	default:
		app.logger.Info("using in-memory monitor store")
		return memoryStorage.NewMonitorStore(), nil
	}
}

func setupBlobStore(ctx context.Context, app *App) (watch.BlobStore, error) {
	cfg := app.cfg.Artifacts
	switch cfg.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.onClose(func(context.Context) error { return client.Close() })
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:       cfg.Bucket,
			CacheControl: cfg.CacheControl,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("using GCS evidence store", zap.String("bucket", cfg.Bucket))
		return blobs, nil
	case "local":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local evidence store", zap.String("path", cfg.BaseDir))
		return blobs, nil
	default:
		app.logger.Info("using in-memory evidence store")
		return memoryStorage.NewBlobStore(), nil
	}
}

func setupPublisher(ctx context.Context, app *App) (watch.Publisher, error) {
	cfg := app.cfg.Notify
	switch cfg.Backend {
	case "pubsub":
		p, err := gcppublisher.Dial(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.onClose(func(context.Context) error { return p.Close() })
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", cfg.ProjectID),
			zap.String("topic", cfg.Topic))
		return p, nil
	case "memory":
		app.logger.Info("using in-memory publisher")
		return memorypublisher.New(1000), nil
	default:
		app.logger.Info("notifications are logged only")
		return logpublisher.New(app.logger), nil
	}
}

func setupJudge(app *App) (judge.Judge, error) {
	cfg := app.cfg.Judge
	if cfg.APIKey == "" {
		app.logger.Warn("judge api key is empty; judge calls will fail and checks will degrade",
			zap.String("provider", cfg.Provider))
	}
	j, err := judge.New(judge.Config{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		MaxTokens: cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("judge init failed: %w", err)
	}
	return judge.NewInstrumented(j, app.logger.Named("judge")), nil
}

func setupAcquirer(app *App) (*acquire.Acquirer, error) {
	cfg := app.cfg.Fetch
	light := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.UserAgent,
		RespectRobots: cfg.RespectRobots,
		Timeout:       cfg.LightTimeout,
	})

	var browser interface {
		watch.Fetcher
		watch.Screenshotter
	}
	if cfg.BrowserEnabled {
		b, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.BrowserMaxParallel,
			UserAgent:         cfg.UserAgent,
			NavigationTimeout: cfg.RenderTimeout,
			ExecPath:          cfg.BrowserExecPath,
			ViewportWidth:     cfg.ViewportWidth,
		})
		if err != nil {
			return nil, fmt.Errorf("headless browser init failed: %w", err)
		}
		browser = b
		app.logger.Info("using headless browser", zap.Int("max_parallel", cfg.BrowserMaxParallel))
	} else {
		browser = headlessfetcher.NewNoop()
		app.logger.Warn("headless browser disabled; rendered and screenshot tiers will fail")
	}

	return acquire.New(acquire.Deps{
		Light:    light,
		Rendered: browser,
		Shooter:  browser,
		Detector: detector.New(cfg.PromotionThreshold),
		Limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimitRPS,
			DefaultBurst: cfg.RateLimitBurst,
		}),
	}, app.logger), nil
}

// storeReady probes the store with a lookup that cannot match; a not-found
// answer proves the backend is reachable.
func storeReady(store watch.MonitorStore) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := store.GetByID(ctx, "readyz-probe")
		if err == nil || errors.Is(err, watch.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("monitor store unavailable: %w", err)
	}
}
