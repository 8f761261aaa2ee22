package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ciphermesh/internal/domain"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	readWait     = 60 * time.Second
	sendBuffer   = 256
)

// ErrTransportClosed is returned by Send once Run has returned.
var ErrTransportClosed = errors.New("transport closed")

// WS is a websocket Transport. Items are queued by Send and written by the
// connection loop started with Run, which reconnects with exponential
// backoff. An item whose write failed is retried first on the next
// connection.
type WS struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
	Log    *zap.Logger

	out  chan []byte
	done chan struct{}

	mu       sync.RWMutex
	handlers []func(ctx context.Context, item domain.WireItem)

	closeOnce sync.Once
	pending   []byte

	// unwritten counts items accepted by Send and not yet on the wire; idle
	// is closed whenever it is zero.
	flushMu   sync.Mutex
	unwritten int
	idle      chan struct{}
}

// NewWS returns a transport for the directory at base (http or https). The
// websocket endpoint is derived from it.
func NewWS(base string, self domain.DeviceAddress, log *zap.Logger) *WS {
	if log == nil {
		log = zap.NewNop()
	}
	u := strings.TrimRight(base, "/") + "/v1/ws"
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	h := http.Header{}
	h.Set(HeaderUser, self.UserID.String())
	h.Set(HeaderDevice, self.DeviceID.String())
	idle := make(chan struct{})
	close(idle)
	return &WS{
		URL:    u,
		Header: h,
		Dialer: websocket.DefaultDialer,
		Log:    log,
		out:    make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		idle:   idle,
	}
}

func (w *WS) accepted() {
	w.flushMu.Lock()
	if w.unwritten == 0 {
		w.idle = make(chan struct{})
	}
	w.unwritten++
	w.flushMu.Unlock()
}

func (w *WS) written() {
	w.flushMu.Lock()
	w.unwritten--
	if w.unwritten == 0 {
		close(w.idle)
	}
	w.flushMu.Unlock()
}

// OnWireItem registers fn for every inbound item. Handlers run on the read
// goroutine in registration order.
func (w *WS) OnWireItem(fn func(ctx context.Context, item domain.WireItem)) {
	w.mu.Lock()
	w.handlers = append(w.handlers, fn)
	w.mu.Unlock()
}

// Send queues item for delivery. It blocks while the queue is full.
func (w *WS) Send(ctx context.Context, item domain.WireItem) error {
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode wire item: %w", err)
	}
	w.accepted()
	select {
	case w.out <- b:
		return nil
	case <-w.done:
		w.written()
		return ErrTransportClosed
	case <-ctx.Done():
		w.written()
		return ctx.Err()
	}
}

// Flush waits until no item accepted by Send is left unwritten.
func (w *WS) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	idle := w.idle
	w.flushMu.Unlock()
	select {
	case <-idle:
		return nil
	default:
	}
	select {
	case <-idle:
		return nil
	case <-w.done:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run keeps a connection open until ctx is cancelled.
func (w *WS) Run(ctx context.Context) error {
	defer w.closeOnce.Do(func() { close(w.done) })
	for {
		conn, err := w.dial(ctx)
		if err != nil {
			return err
		}
		w.Log.Info("transport connected", zap.String("url", w.URL))
		err = w.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		w.Log.Warn("transport disconnected", zap.Error(err))
	}
}

func (w *WS) dial(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	op := func() error {
		c, resp, err := w.Dialer.DialContext(ctx, w.URL, w.Header)
		if err != nil {
			if resp != nil && resp.StatusCode/100 == 4 {
				return backoff.Permanent(fmt.Errorf("dial %s: %s", w.URL, resp.Status))
			}
			return err
		}
		conn = c
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	notify := func(err error, d time.Duration) {
		w.Log.Debug("transport dial failed", zap.Error(err), zap.Duration("retry_in", d))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

func (w *WS) serve(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	readErr := make(chan error, 1)
	go func() {
		readErr <- w.readLoop(ctx, conn)
		cancel()
	}()
	err := w.writeLoop(ctx, conn)
	_ = conn.Close()
	if rerr := <-readErr; err == nil {
		err = rerr
	}
	return err
}

func (w *WS) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	write := func(msg []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			w.pending = msg
			return err
		}
		w.pending = nil
		w.written()
		return nil
	}
	if w.pending != nil {
		if err := write(w.pending); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		case msg := <-w.out:
			if err := write(msg); err != nil {
				return err
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (w *WS) readLoop(ctx context.Context, conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		var item domain.WireItem
		if err := json.Unmarshal(data, &item); err != nil {
			w.Log.Warn("dropping malformed wire item", zap.Error(err))
			continue
		}
		w.dispatch(ctx, item)
	}
}

func (w *WS) dispatch(ctx context.Context, item domain.WireItem) {
	w.mu.RLock()
	hs := append([]func(context.Context, domain.WireItem){}, w.handlers...)
	w.mu.RUnlock()
	for _, h := range hs {
		h(ctx, item)
	}
}

var _ domain.Transport = (*WS)(nil)
