package app_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"ciphermesh/internal/app"
	"ciphermesh/internal/directory"
	"ciphermesh/internal/domain"
	"ciphermesh/internal/events"
	"ciphermesh/internal/logger"
	"ciphermesh/internal/metrics"
)

type received struct {
	meta events.Meta
	ev   events.Event
}

func startApp(t *testing.T, ctx context.Context, url, user string, dev uint32) (*app.App, <-chan received) {
	t.Helper()
	cfg := app.Default()
	cfg.Home = t.TempDir()
	cfg.UserID = user
	cfg.DeviceID = dev
	cfg.Directory.URL = url
	cfg.Cache.LRUSize = 8
	cfg.Keys.BatchSize = 25

	w, err := app.NewWire(ctx, cfg, logger.Nop())
	if err != nil {
		t.Fatalf("wire %s.%d: %v", user, dev, err)
	}
	a := app.New(w)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	if err := a.Start(ctx); err != nil {
		t.Fatalf("start %s.%d: %v", user, dev, err)
	}
	got := make(chan received, 64)
	for _, kind := range []string{events.KindMessage, events.KindReceipt} {
		a.RegisterTypeCallback(kind, func(_ context.Context, meta events.Meta, ev events.Event) {
			if !meta.Local {
				got <- received{meta: meta, ev: ev}
			}
		})
	}
	go func() { _ = a.Run(ctx, time.Hour) }()
	return a, got
}

func waitFor(t *testing.T, ch <-chan received) received {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return received{}
	}
}

func TestEndToEnd_FanOutAndReply(t *testing.T) {
	ts := httptest.NewServer(directory.NewServer(directory.NewMemoryStore(), nil).Router())
	defer ts.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice1, alice1Got := startApp(t, ctx, ts.URL, "alice", 1)
	_, alice2Got := startApp(t, ctx, ts.URL, "alice", 2)
	bob, bobGot := startApp(t, ctx, ts.URL, "bob", 1)

	if n := bob.GetMetricsReport().Counters[metrics.PreKeysGenerated]; n != 25 {
		t.Fatalf("bob generated %d pre-keys", n)
	}

	res, err := alice1.SendToUser(ctx, "bob", events.KindMessage, "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(res.Delivered) != 2 || len(res.Failed) != 0 {
		t.Fatalf("result = %+v", res)
	}

	for name, ch := range map[string]<-chan received{"bob": bobGot, "alice.2": alice2Got} {
		r := waitFor(t, ch)
		m, ok := r.ev.(events.Message)
		if !ok || m.Text != "hi" {
			t.Fatalf("%s got %#v", name, r.ev)
		}
		if r.meta.ItemID != res.ItemID || r.meta.CipherType != domain.PreKeyInit {
			t.Fatalf("%s meta = %+v", name, r.meta)
		}
	}

	// bob answers over the session alice opened.
	if _, err := bob.SendToUser(ctx, "alice", events.KindReceipt, events.Receipt{ItemIDs: []domain.ItemID{res.ItemID}}); err != nil {
		t.Fatalf("reply: %v", err)
	}
	r := waitFor(t, alice1Got)
	rc, ok := r.ev.(events.Receipt)
	if !ok || len(rc.ItemIDs) != 1 || rc.ItemIDs[0] != res.ItemID {
		t.Fatalf("alice.1 got %#v", r.ev)
	}
	if r.meta.CipherType != domain.Established {
		t.Fatalf("reply cipher type = %v", r.meta.CipherType)
	}
	if bob.GetMetricsReport().Counters[metrics.PreKeyConsumed] != 1 {
		t.Fatal("bob did not consume exactly one pre-key")
	}

	bob.ResetMetrics()
	if len(bob.GetMetricsReport().Counters) != 0 {
		t.Fatalf("counters after reset: %v", bob.GetMetricsReport().Counters)
	}
}

func TestSendToUser_MoreMessagesThanBatchSize(t *testing.T) {
	ts := httptest.NewServer(directory.NewServer(directory.NewMemoryStore(), nil).Router())
	defer ts.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice1, _ := startApp(t, ctx, ts.URL, "alice", 1)
	startApp(t, ctx, ts.URL, "alice", 2)
	bob, bobGot := startApp(t, ctx, ts.URL, "bob", 1)

	const n = 30
	for i := 0; i < n; i++ {
		res, err := alice1.SendToUser(ctx, "bob", events.KindMessage, fmt.Sprint(i))
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if len(res.Delivered) != 2 || len(res.Failed) != 0 {
			t.Fatalf("send %d: result = %+v", i, res)
		}
	}
	got := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		r := waitFor(t, bobGot)
		m, ok := r.ev.(events.Message)
		if !ok {
			t.Fatalf("bob got %#v", r.ev)
		}
		got[m.Text] = true
	}
	if len(got) != n {
		t.Fatalf("bob got %d distinct messages, want %d", len(got), n)
	}

	// Only the first send claimed one of bob's published pre-keys.
	st, err := bob.Directory.QueryStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.PreKeyCount != 24 {
		t.Fatalf("bob's published pre-keys = %d, want 24", st.PreKeyCount)
	}
}

func TestStart_DirectoryDownIsTolerated(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	cfg := app.Default()
	cfg.Home = t.TempDir()
	cfg.UserID = "carol"
	cfg.Directory.URL = url
	w, err := app.NewWire(context.Background(), cfg, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	a := app.New(w)
	defer a.Close(context.Background())

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start offline: %v", err)
	}
	if _, err := a.Identity.Load(); err != nil {
		t.Fatalf("identity not created offline: %v", err)
	}
}
