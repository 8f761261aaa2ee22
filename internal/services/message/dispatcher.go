package message

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ciphermesh/internal/domain"
	"ciphermesh/internal/events"
	"ciphermesh/internal/metrics"
)

// DefaultParallelism bounds concurrent device legs of one send.
const DefaultParallelism = 8

// DispatcherConfig carries the Dispatcher's collaborators.
type DispatcherConfig struct {
	Self      domain.DeviceAddress
	Directory domain.Directory
	Engine    domain.SessionEngine
	Transport domain.Transport
	Sent      domain.SentStore
	Bus       *events.Bus

	Parallelism int
	Log         *zap.Logger
	Metrics     *metrics.Registry
	Now         func() time.Time
	NewItemID   func() domain.ItemID
}

// Dispatcher fans one logical message out to every device of the recipient
// and the sender's other devices.
type Dispatcher struct {
	self        domain.DeviceAddress
	dir         domain.Directory
	engine      domain.SessionEngine
	transport   domain.Transport
	sent        domain.SentStore
	bus         *events.Bus
	parallelism int
	log         *zap.Logger
	metrics     *metrics.Registry
	now         func() time.Time
	newItemID   func() domain.ItemID
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		self:        cfg.Self,
		dir:         cfg.Directory,
		engine:      cfg.Engine,
		transport:   cfg.Transport,
		sent:        cfg.Sent,
		bus:         cfg.Bus,
		parallelism: cfg.Parallelism,
		log:         cfg.Log,
		metrics:     cfg.Metrics,
		now:         cfg.Now,
		newItemID:   cfg.NewItemID,
	}
	if d.parallelism <= 0 {
		d.parallelism = DefaultParallelism
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.metrics == nil {
		d.metrics = metrics.New()
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.newItemID == nil {
		d.newItemID = func() domain.ItemID { return domain.ItemID(uuid.NewString()) }
	}
	return d
}

// LegFailure is one device that did not receive the item.
type LegFailure struct {
	Address domain.DeviceAddress
	Err     error
}

// SendResult reports the outcome of SendToUser per device.
type SendResult struct {
	ItemID    domain.ItemID
	Delivered []domain.DeviceAddress
	Failed    []LegFailure
	// SawSelf is set when the directory listed the sending device.
	SawSelf bool
}

// SendToUser persists, echoes locally and then encrypts payload once per
// device. Device legs fail independently and are reported in the result;
// the returned error covers only the steps before the fan-out.
func (d *Dispatcher) SendToUser(ctx context.Context, recipient domain.UserID, typ string, payload any) (SendResult, error) {
	if recipient == "" {
		return SendResult{}, fmt.Errorf("send: empty recipient")
	}
	text, err := canonical(payload)
	if err != nil {
		return SendResult{}, fmt.Errorf("send: %w", err)
	}
	res := SendResult{ItemID: d.newItemID()}
	log := d.log.With(zap.String("item_id", res.ItemID.String()), zap.String("recipient", recipient.String()))

	if err := d.sent.SaveSent(ctx, domain.SentRecord{
		ItemID:    res.ItemID,
		Recipient: recipient,
		Type:      typ,
		Payload:   text,
		SentAt:    d.now(),
	}); err != nil {
		return res, fmt.Errorf("persist sent item: %w", err)
	}

	if d.bus != nil {
		d.bus.Publish(ctx, events.Meta{ItemID: res.ItemID, From: d.self, Local: true}, events.Decode(typ, []byte(text)))
	}

	known, err := d.engine.KnownDevices(ctx, recipient, d.self.UserID)
	if err != nil {
		// Every device then claims a fresh pre-key.
		log.Warn("listing sessions failed", zap.Error(err))
		known = nil
	}
	devices, err := d.dir.FetchDevices(ctx, recipient, known)
	if err != nil {
		log.Warn("fetch devices failed, sent item kept", zap.Error(err))
		return res, fmt.Errorf("fetch devices of %s: %w", recipient, err)
	}
	targets, sawSelf := domain.Classify(d.self, devices.Bundles)
	res.SawSelf = sawSelf

	var (
		mu   sync.Mutex
		seen = make(map[domain.DeviceAddress]bool, len(targets)+len(devices.Rejected))
	)
	for _, rj := range devices.Rejected {
		if rj.Address == d.self {
			res.SawSelf = true
			continue
		}
		if seen[rj.Address] || (rj.Address.UserID != recipient && rj.Address.UserID != d.self.UserID) {
			continue
		}
		seen[rj.Address] = true
		d.metrics.Inc(metrics.SendLegFailed)
		log.Warn("device leg failed", zap.String("address", rj.Address.String()), zap.Error(rj.Err))
		res.Failed = append(res.Failed, LegFailure{Address: rj.Address, Err: rj.Err})
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism)
	for _, t := range targets {
		b := t.Bundle()
		addr := b.Address()
		if seen[addr] {
			continue
		}
		seen[addr] = true
		if _, peer := t.(domain.PeerDevice); peer && b.UserID != recipient {
			log.Warn("directory returned unrelated device", zap.String("address", addr.String()))
			continue
		}
		g.Go(func() error {
			err := d.leg(gctx, res.ItemID, typ, b, []byte(text))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.metrics.Inc(metrics.SendLegFailed)
				log.Warn("device leg failed", zap.String("address", addr.String()), zap.Error(err))
				res.Failed = append(res.Failed, LegFailure{Address: addr, Err: err})
				return nil
			}
			d.metrics.Inc(metrics.ItemsSent)
			res.Delivered = append(res.Delivered, addr)
			return nil
		})
	}
	_ = g.Wait()
	return res, nil
}

func (d *Dispatcher) leg(ctx context.Context, id domain.ItemID, typ string, b domain.PreKeyBundle, plaintext []byte) error {
	payload, ct, err := d.engine.EncryptFor(ctx, b, plaintext)
	if err != nil {
		return err
	}
	return d.transport.Send(ctx, domain.WireItem{
		ItemID:            id,
		Sender:            d.self.UserID,
		SenderDeviceID:    d.self.DeviceID,
		Recipient:         b.UserID,
		RecipientDeviceID: b.DeviceID,
		Type:              typ,
		Payload:           payload,
		CipherType:        ct,
	})
}

// canonical renders payload as the string that is encrypted and persisted.
func canonical(payload any) (string, error) {
	switch v := payload.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}
