package metrics_test

import (
	"sync"
	"testing"

	"ciphermesh/internal/metrics"
)

func TestRegistry_ConcurrentInc(t *testing.T) {
	r := metrics.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Inc(metrics.DecryptFailed)
		}()
	}
	wg.Wait()
	if got := r.Get(metrics.DecryptFailed); got != 50 {
		t.Fatalf("got %d, want 50", got)
	}
}

func TestRegistry_ReportAndReset(t *testing.T) {
	r := metrics.New()
	r.Add(metrics.PreKeysGenerated, 110)
	r.Inc(metrics.PreKeyBatches)

	rep := r.Report()
	if rep.Counters[metrics.PreKeysGenerated] != 110 || rep.Counters[metrics.PreKeyBatches] != 1 {
		t.Fatalf("report %v", rep.Counters)
	}
	names := rep.Names()
	if len(names) != 2 || names[0] != metrics.PreKeyBatches {
		t.Fatalf("names %v", names)
	}

	r.Reset()
	if got := r.Get(metrics.PreKeysGenerated); got != 0 {
		t.Fatalf("after reset got %d", got)
	}
	if len(r.Report().Counters) != 0 {
		t.Fatal("report not empty after reset")
	}
}
