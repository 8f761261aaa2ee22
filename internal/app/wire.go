package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ciphermesh/internal/domain"
	"ciphermesh/internal/events"
	"ciphermesh/internal/logger"
	"ciphermesh/internal/metrics"
	"ciphermesh/internal/relay"
	"ciphermesh/internal/services/identity"
	messagesvc "ciphermesh/internal/services/message"
	prekeysvc "ciphermesh/internal/services/prekey"
	sessionsvc "ciphermesh/internal/services/session"
	"ciphermesh/internal/store"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Config  Config
	Log     *logger.Logger
	Metrics *metrics.Registry
	Bus     *events.Bus

	Identity      *identity.Service
	PreKeys       domain.PreKeyStore
	SignedPreKeys domain.SignedPreKeyStore
	Sessions      domain.SessionStore
	Sent          domain.SentStore
	Cache         domain.DecryptedCache

	Directory  *relay.HTTP
	Transport  *relay.WS
	Engine     *sessionsvc.Engine
	Keys       *prekeysvc.Manager
	Dispatcher *messagesvc.Dispatcher
	Pipeline   *messagesvc.Pipeline

	closers []func(context.Context) error
}

// NewWire constructs the dependency graph from cfg. A nil log builds one
// from cfg.LogMode.
func NewWire(ctx context.Context, cfg Config, log *logger.Logger) (*Wire, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, err
	}
	if log == nil {
		var err error
		if log, err = logger.New(cfg.LogMode); err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
	}

	self := cfg.Self()
	w := &Wire{
		Config:  cfg,
		Log:     log,
		Metrics: metrics.New(),
	}
	w.Bus = events.NewBus(log.Named("events"))

	// File-based key stores
	ids := store.NewIdentityFileStore(cfg.Home, cfg.Passphrase)
	w.Identity = identity.New(ids)
	w.PreKeys = store.NewPreKeyFileStore(cfg.Home)
	w.SignedPreKeys = store.NewSignedPreKeyFileStore(cfg.Home)
	w.Sessions = store.NewSessionFileStore(cfg.Home)

	if err := w.openSent(ctx); err != nil {
		_ = w.Close(ctx)
		return nil, err
	}
	if err := w.openCache(ctx); err != nil {
		_ = w.Close(ctx)
		return nil, err
	}

	w.Directory = relay.NewHTTP(cfg.Directory.URL, self, log.Named("directory"), w.Metrics)
	if cfg.Directory.Timeout > 0 {
		w.Directory.HTTP.Timeout = cfg.Directory.Timeout
	}
	w.Transport = relay.NewWS(cfg.TransportURL(), self, log.Named("transport"))

	w.Keys = prekeysvc.New(prekeysvc.Config{
		Identity:      w.Identity,
		PreKeys:       w.PreKeys,
		SignedPreKeys: w.SignedPreKeys,
		Directory:     w.Directory,
		LowWater:      cfg.Keys.LowWater,
		BatchSize:     cfg.Keys.BatchSize,
		Rotation:      cfg.Keys.Rotation,
		Retention:     cfg.Keys.Retention,
		Log:           log.Named("keys"),
		Metrics:       w.Metrics,
	})
	w.Engine = sessionsvc.New(sessionsvc.Config{
		Identity:      ids,
		PreKeys:       w.PreKeys,
		SignedPreKeys: w.SignedPreKeys,
		Sessions:      w.Sessions,
		Log:           log.Named("session"),
		Metrics:       w.Metrics,
	})
	w.Engine.OnPreKeyConsumed(w.Keys.OnPreKeyConsumed)

	w.Dispatcher = messagesvc.NewDispatcher(messagesvc.DispatcherConfig{
		Self:        self,
		Directory:   w.Directory,
		Engine:      w.Engine,
		Transport:   w.Transport,
		Sent:        w.Sent,
		Bus:         w.Bus,
		Parallelism: cfg.FanOut.Parallelism,
		Log:         log.Named("dispatcher"),
		Metrics:     w.Metrics,
	})
	w.Pipeline = messagesvc.NewPipeline(messagesvc.PipelineConfig{
		Self:    self,
		Engine:  w.Engine,
		Cache:   w.Cache,
		Bus:     w.Bus,
		Log:     log.Named("pipeline"),
		Metrics: w.Metrics,
	})
	w.Pipeline.Attach(w.Transport)
	return w, nil
}

func (w *Wire) openSent(ctx context.Context) error {
	switch w.Config.Sent.Backend {
	case BackendMongo:
		client, err := store.ConnectMongo(ctx, w.Config.Mongo.URI)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		w.closers = append(w.closers, client.Disconnect)
		w.Sent = store.NewMongoSentStore(client.Database(w.Config.Mongo.Database))
	default:
		w.Sent = store.NewSentFileStore(w.Config.Home)
	}
	return nil
}

func (w *Wire) openCache(ctx context.Context) error {
	var backend domain.DecryptedCache
	switch w.Config.Cache.Backend {
	case BackendRedis:
		r := w.Config.Redis
		client, err := store.NewRedisClient(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		w.closers = append(w.closers, func(context.Context) error { return client.Close() })
		backend = store.NewRedisDecryptedCache(client, "", 0)
	default:
		fs, err := store.NewDecryptedFileStore(w.Config.Home)
		if err != nil {
			return err
		}
		backend = fs
	}
	if w.Config.Cache.LRUSize <= 0 {
		w.Cache = backend
		return nil
	}
	lru, err := store.NewLRUDecryptedCache(w.Config.Cache.LRUSize, backend)
	if err != nil {
		return err
	}
	w.Cache = lru
	return nil
}

// Close releases backend connections and flushes the log.
func (w *Wire) Close(ctx context.Context) error {
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	w.closers = nil
	// Sync fails on terminals; nothing to do about it.
	_ = w.Log.Sync()
	return errors.Join(errs...)
}
