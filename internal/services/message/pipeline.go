package message

import (
	"context"

	"go.uber.org/zap"

	"ciphermesh/internal/domain"
	"ciphermesh/internal/events"
	"ciphermesh/internal/metrics"
	"ciphermesh/internal/util/keyedmutex"
)

// PipelineConfig carries the Pipeline's collaborators.
type PipelineConfig struct {
	Self    domain.DeviceAddress
	Engine  domain.SessionEngine
	Cache   domain.DecryptedCache
	Bus     *events.Bus
	Log     *zap.Logger
	Metrics *metrics.Registry
}

// Pipeline decrypts inbound wire items at most once per item id and
// publishes the result on the bus.
type Pipeline struct {
	self    domain.DeviceAddress
	engine  domain.SessionEngine
	cache   domain.DecryptedCache
	bus     *events.Bus
	log     *zap.Logger
	metrics *metrics.Registry

	items keyedmutex.Mutex[domain.ItemID]
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	p := &Pipeline{
		self:    cfg.Self,
		engine:  cfg.Engine,
		cache:   cfg.Cache,
		bus:     cfg.Bus,
		log:     cfg.Log,
		metrics: cfg.Metrics,
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}
	return p
}

// Receive returns the plaintext of item. A repeated item id is answered
// from the cache without touching the session. The bool is false when the
// item could not be decrypted; failures never propagate.
func (p *Pipeline) Receive(ctx context.Context, item domain.WireItem) ([]byte, bool) {
	log := p.log.With(zap.String("item_id", item.ItemID.String()), zap.String("from", item.SenderAddress().String()))
	if item.ItemID == "" {
		log.Warn("dropping item without id")
		return nil, false
	}
	if p.self.Valid() && item.RecipientAddress() != p.self {
		log.Warn("dropping item for another device", zap.String("recipient", item.RecipientAddress().String()))
		return nil, false
	}

	unlock, err := p.items.Lock(ctx, item.ItemID)
	if err != nil {
		return nil, false
	}
	defer unlock()

	if pt, ok, err := p.cache.Get(ctx, item.ItemID); err != nil {
		log.Error("decrypted cache read failed", zap.Error(err))
		return nil, false
	} else if ok {
		p.metrics.Inc(metrics.DecryptDuplicate)
		return pt, true
	}

	pt, err := p.engine.Decrypt(ctx, item.SenderAddress(), item.Payload, item.CipherType)
	if err != nil {
		log.Warn("decrypt failed", zap.Stringer("cipher_type", item.CipherType), zap.Error(err))
		return nil, false
	}

	wrote, err := p.cache.PutIfAbsent(ctx, item.ItemID, pt)
	if err != nil {
		log.Error("decrypted cache write failed", zap.Error(err))
	} else if !wrote {
		// Another process got there first; its copy is authoritative.
		if cached, ok, err := p.cache.Get(ctx, item.ItemID); err == nil && ok {
			return cached, true
		}
	}

	if p.bus != nil {
		p.bus.Publish(ctx, events.Meta{
			ItemID:     item.ItemID,
			From:       item.SenderAddress(),
			CipherType: item.CipherType,
		}, events.Decode(item.Type, pt))
	}
	return pt, true
}

// Result is the outcome of one item in a batch.
type Result struct {
	ItemID    domain.ItemID
	Plaintext []byte
	OK        bool
}

// ReceiveBatch runs Receive on each item in order. A failing item does not
// affect the others.
func (p *Pipeline) ReceiveBatch(ctx context.Context, items []domain.WireItem) []Result {
	out := make([]Result, 0, len(items))
	for _, it := range items {
		pt, ok := p.Receive(ctx, it)
		out = append(out, Result{ItemID: it.ItemID, Plaintext: pt, OK: ok})
	}
	return out
}

// Attach registers the pipeline as t's inbound handler.
func (p *Pipeline) Attach(t domain.Transport) {
	t.OnWireItem(func(ctx context.Context, item domain.WireItem) {
		p.Receive(ctx, item)
	})
}
