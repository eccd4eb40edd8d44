package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"studio/internal/analytics"
	"studio/internal/auth"
	"studio/internal/cache"
	"studio/internal/config"
	"studio/internal/cost"
	"studio/internal/logging"
	"studio/internal/metrics"
	"studio/internal/ratelimit"
	"studio/internal/scripts"
	"studio/internal/server"
	"studio/internal/services/llm"
	"studio/internal/store"
	"studio/internal/users"
)

const (
	sweepInterval = 10 * time.Minute
	limiterIdle   = 2 * time.Hour
)

// Daemon owns the studio process lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	llmOpts   []llm.Option
	lockPath  string
	lock      *flock.Flock
	startedAt time.Time

	mu      sync.Mutex
	store   store.Store
	limiter *ratelimit.Limiter
	cache   *cache.Cache
	api     *apiServer
	cancel  context.CancelFunc
	loops   sync.WaitGroup

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool      `json:"running"`
	Bind          string    `json:"bind"`
	Address       string    `json:"address,omitempty"`
	StorageDriver string    `json:"storage_driver"`
	DataDir       string    `json:"data_dir"`
	LogDir        string    `json:"log_dir"`
	SnapshotPath  string    `json:"snapshot_path,omitempty"`
	DatabasePath  string    `json:"database_path,omitempty"`
	LockFilePath  string    `json:"lock_file_path"`
	StartedAt     time.Time `json:"started_at,omitempty"`
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithLLMOptions passes options to every LLM provider client.
func WithLLMOptions(opts ...llm.Option) Option {
	return func(d *Daemon) {
		d.llmOpts = append(d.llmOpts, opts...)
	}
}

// New constructs a daemon. Nothing is opened until Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the instance lock, opens storage, wires the services and
// begins serving HTTP.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another studio daemon instance is already running")
	}

	if err := d.startLocked(ctx); err != nil {
		d.releaseLocked()
		return err
	}
	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("studio daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.addr()),
		logging.String("storage_driver", d.cfg.Storage.Driver),
	)
	if d.cfg.JWTSecretGenerated() {
		logging.WarnWithContext(d.logger, "jwt secret generated for this process", "jwt_secret_generated",
			logging.String(logging.FieldImpact, "issued tokens become invalid after restart"),
			logging.String(logging.FieldErrorHint, "set auth.jwt_secret or JWT_SECRET"),
		)
	}
	return nil
}

func (d *Daemon) startLocked(ctx context.Context) error {
	st, err := store.Open(d.cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	d.store = st

	handler, err := d.buildHandler(st)
	if err != nil {
		return err
	}
	api, err := newAPIServer(d.cfg, handler.Handler(), d.logger)
	if err != nil {
		return err
	}
	if err := api.start(); err != nil {
		return err
	}
	d.api = api

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if interval := time.Duration(d.cfg.Storage.SnapshotInterval) * time.Second; interval > 0 {
		d.runLoop(loopCtx, interval, d.flush)
	}
	d.runLoop(loopCtx, sweepInterval, d.sweep)
	return nil
}

// buildHandler wires the domain services on top of st.
func (d *Daemon) buildHandler(st store.Store) (*server.Server, error) {
	issuer, err := auth.NewIssuer(d.cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}
	userSvc, err := users.NewService(st, issuer, d.cfg.Auth, d.logger)
	if err != nil {
		return nil, fmt.Errorf("users service: %w", err)
	}
	m := metrics.New()
	gen, err := scripts.NewGenerator(scripts.Options{
		Store:      st,
		Users:      userSvc,
		Providers:  scripts.ProvidersFromConfig(d.cfg, d.llmOpts...),
		Generation: d.cfg.Generation,
		Pricing:    d.cfg.Pricing,
		Metrics:    m,
		Logger:     d.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("script generator: %w", err)
	}
	analyzer, err := cost.NewAnalyzer(cost.Options{
		Store:     st,
		Users:     userSvc,
		Pricing:   d.cfg.Pricing,
		Providers: gen.ProviderNames(),
		Logger:    d.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("cost analyzer: %w", err)
	}
	respCache, err := cache.New(d.cfg.Cache)
	if err != nil {
		return nil, err
	}
	d.cache = respCache
	d.limiter = ratelimit.New(d.cfg.RateLimit)

	srv, err := server.New(server.Options{
		Config:    d.cfg,
		Store:     st,
		Issuer:    issuer,
		Users:     userSvc,
		Generator: gen,
		Analytics: analytics.NewService(st, d.logger),
		Cost:      analyzer,
		Limiter:   d.limiter,
		Cache:     respCache,
		Metrics:   m,
		Logger:    d.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("http server: %w", err)
	}
	d.logger.Info("services ready",
		logging.Any("providers", gen.ProviderNames()),
		logging.Bool("rate_limit", d.cfg.RateLimit.Enabled),
		logging.Bool("cache", respCache.Enabled()),
	)
	return srv, nil
}

func (d *Daemon) runLoop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	d.loops.Add(1)
	go func() {
		defer d.loops.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

func (d *Daemon) flush(ctx context.Context) {
	if err := d.store.Flush(ctx); err != nil {
		logging.WarnWithContext(d.logger, "snapshot flush failed", "snapshot_flush_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions in data_dir"),
			logging.String(logging.FieldImpact, "recent changes are not yet durable"),
		)
	}
}

func (d *Daemon) sweep(context.Context) {
	if removed := d.limiter.Sweep(limiterIdle); removed > 0 {
		d.logger.Debug("rate limiter buckets swept", logging.Int("removed", removed))
	}
}

// Run starts the daemon and blocks until ctx is canceled, then shuts down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop()
	return nil
}

// Stop drains HTTP traffic, stops background loops, flushes and closes
// storage, and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	d.releaseLocked()
	d.running.Store(false)
	d.logger.Info("studio daemon stopped")
}

func (d *Daemon) releaseLocked() {
	if d.api != nil {
		d.api.stop()
		d.api = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.loops.Wait()
	if d.cache != nil {
		d.cache.Close()
		d.cache = nil
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			logging.WarnWithContext(d.logger, "store close failed", "store_close_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the last snapshot may be stale"),
			)
		}
		d.store = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := Status{
		Running:       d.running.Load(),
		Bind:          d.cfg.Server.Bind,
		Address:       d.api.addr(),
		StorageDriver: d.cfg.Storage.Driver,
		DataDir:       d.cfg.Paths.DataDir,
		LogDir:        d.cfg.Paths.LogDir,
		LockFilePath:  d.lockPath,
	}
	if st.Running {
		st.StartedAt = d.startedAt
	}
	switch d.cfg.Storage.Driver {
	case "sqlite":
		st.DatabasePath = d.cfg.DatabasePath()
	default:
		st.SnapshotPath = d.cfg.SnapshotPath()
	}
	return st
}
