package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ciphermesh/internal/domain"
	"ciphermesh/internal/events"
	"ciphermesh/internal/metrics"
	messagesvc "ciphermesh/internal/services/message"
)

// DefaultProbeInterval is how often Run re-checks published key material.
const DefaultProbeInterval = 10 * time.Minute

// App is the surface the CLI and embedding programs use.
type App struct {
	*Wire
}

func New(w *Wire) *App { return &App{Wire: w} }

// Open wires cfg into a ready App.
func Open(ctx context.Context, cfg Config) (*App, error) {
	w, err := NewWire(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	return New(w), nil
}

// Start makes sure keys exist locally and are published. An unreachable
// directory is logged and tolerated so the device can still decrypt.
func (a *App) Start(ctx context.Context) error {
	err := a.Keys.Bootstrap(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrDirectoryUnavailable) {
		a.Log.WithContext(ctx).Warn("directory unreachable, continuing offline", zap.Error(err))
		return nil
	}
	return err
}

// Run keeps the transport connected and the key pool topped up until ctx
// is done.
func (a *App) Run(ctx context.Context, probeEvery time.Duration) error {
	if probeEvery <= 0 {
		probeEvery = DefaultProbeInterval
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Transport.Run(ctx) })
	g.Go(func() error {
		a.Keys.Run(ctx, probeEvery)
		return nil
	})
	return g.Wait()
}

// SendToUser fans payload out to every device of recipient and this
// user's other devices.
func (a *App) SendToUser(ctx context.Context, recipient domain.UserID, typ string, payload any) (messagesvc.SendResult, error) {
	return a.Dispatcher.SendToUser(ctx, recipient, typ, payload)
}

// RegisterTypeCallback subscribes fn to decrypted items and local echoes
// of type typ. The returned func unsubscribes.
func (a *App) RegisterTypeCallback(typ string, fn events.Handler) func() {
	return a.Bus.Subscribe(typ, fn)
}

// RegisterCipherCallback subscribes fn to decrypted items of cipher type ct.
func (a *App) RegisterCipherCallback(ct domain.CipherType, fn events.Handler) func() {
	return a.Bus.SubscribeCipher(ct, fn)
}

func (a *App) GetMetricsReport() metrics.Report { return a.Metrics.Report() }

func (a *App) ResetMetrics() { a.Metrics.Reset() }
