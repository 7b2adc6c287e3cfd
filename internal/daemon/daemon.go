package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"beacon/internal/config"
	"beacon/internal/discovery"
	"beacon/internal/engine"
	"beacon/internal/logging"
	"beacon/internal/logserver"
	"beacon/internal/repository"
	"beacon/internal/server"
	"beacon/internal/supervisor"
)

// LockFileName is the single-instance lock inside the configuration root.
const LockFileName = ".beacond.lock"

// Daemon is the assembled beacon process.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	lock      *flock.Flock
	sup       *supervisor.Supervisor
	eng       engine.Engine
	store     *repository.Store
	watcher   *repository.ExternalWatcher
	logServer *logserver.Server
	server    *server.Server
	responder *discovery.Responder
}

// New builds an unstarted daemon.
func New(cfg *config.Config, logger *slog.Logger) *Daemon {
	return &Daemon{cfg: cfg, logger: logging.NewComponentLogger(logger, "daemon")}
}

// Start brings every component up in dependency order. On failure the
// already-started pieces are torn down and the error names the culprit;
// callers should treat any error as fatal.
func (d *Daemon) Start(ctx context.Context) (err error) {
	began := time.Now()
	defer func() {
		if err != nil {
			d.Shutdown()
		}
	}()

	d.lock = flock.New(filepath.Join(d.cfg.DBPath, LockFileName))
	locked, lockErr := d.lock.TryLock()
	if lockErr != nil {
		return fmt.Errorf("acquire daemon lock: %w", lockErr)
	}
	if !locked {
		return fmt.Errorf("another beacond instance already serves %s", d.cfg.DBPath)
	}

	d.sup = supervisor.New(BuildServiceSpecs(d.cfg), d.logger)
	if err := d.sup.Start(ctx); err != nil {
		return err
	}

	d.eng = engine.NewRedis(engine.RedisOptions{
		Addr: fmt.Sprintf("127.0.0.1:%d", d.cfg.Redis.Port),
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = d.eng.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("settings engine: %w", err)
	}

	d.store, err = repository.Open(d.cfg.DBPath, d.logger)
	if err != nil {
		return fmt.Errorf("open configuration repository: %w", err)
	}
	d.watcher, err = repository.WatchExternal(d.store, d.logger)
	if err != nil {
		return fmt.Errorf("watch configuration tree: %w", err)
	}

	if d.cfg.LogServer.Port > 0 {
		d.logServer, err = logserver.New(logserver.Options{
			Port:         d.cfg.LogServer.Port,
			OutputFolder: d.cfg.LogServer.OutputFolder,
			RotateBytes:  int64(d.cfg.LogServer.RotateMiB) << 20,
			Logger:       d.logger,
		})
		if err != nil {
			return fmt.Errorf("log aggregator: %w", err)
		}
	}

	hostname, hostErr := os.Hostname()
	if hostErr != nil {
		hostname = "localhost"
	}
	addresses := server.Addresses{
		Hostname:       hostname,
		EngineAddr:     fmt.Sprintf("%s:%d", hostname, d.cfg.Redis.Port),
		EngineSocket:   d.cfg.Redis.Socket,
		EngineDataAddr: fmt.Sprintf("%s:%d", hostname, d.cfg.RedisData.Port),
	}
	if d.logServer != nil {
		addresses.LogPort = d.logServer.Port()
	}

	listener, err := server.Listen(d.cfg.Port)
	if err != nil {
		return err
	}
	d.server, err = server.New(ctx, listener, d.store, d.sup, addresses, d.logger)
	if err != nil {
		listener.Close()
		return err
	}
	d.server.Serve()

	rules, err := config.ParseFilters(d.cfg.Filters)
	if err != nil {
		return err
	}
	d.responder, err = discovery.NewResponder(discovery.Options{
		UDPPort:        d.cfg.DiscoveryPort,
		Hostname:       hostname,
		RepositoryPort: d.server.Port(),
		Rules:          rules,
		Logger:         d.logger,
	})
	if err != nil {
		return err
	}

	attrs := []logging.Attr{
		logging.Int("repository_port", d.server.Port()),
		logging.Int("discovery_port", d.responder.Port()),
		logging.String(logging.FieldPath, d.cfg.DBPath),
		logging.Duration("startup", time.Since(began)),
	}
	if d.logServer != nil {
		attrs = append(attrs, logging.Int("log_port", d.logServer.Port()))
	}
	if len(rules) > 0 {
		attrs = append(attrs, logging.Any("filters", d.cfg.Filters))
	}
	d.logger.Info("beacon daemon ready", logging.Args(attrs...)...)
	return nil
}

// Run starts the daemon and blocks until the context is canceled, then
// shuts everything down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.logger.Info("shutting down")
	d.Shutdown()
	return nil
}

// RepositoryPort reports the bound repository port once started.
func (d *Daemon) RepositoryPort() int {
	if d.server == nil {
		return 0
	}
	return d.server.Port()
}

// Shutdown tears components down in reverse start order. Safe to call on a
// partially started daemon.
func (d *Daemon) Shutdown() {
	if d.responder != nil {
		d.responder.Close()
		d.responder = nil
	}
	if d.server != nil {
		d.server.Close()
		d.server = nil
	}
	if d.logServer != nil {
		d.logServer.Close()
		d.logServer = nil
	}
	if d.watcher != nil {
		d.watcher.Close()
		d.watcher = nil
	}
	if d.store != nil {
		d.store.Close()
		d.store = nil
	}
	if d.eng != nil {
		d.eng.Close()
		d.eng = nil
	}
	if d.sup != nil {
		d.sup.Stop()
		d.sup = nil
	}
	if d.lock != nil {
		d.lock.Unlock()
		d.lock = nil
	}
}
