package keyedmutex_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ciphermesh/internal/util/keyedmutex"
)

func TestSameKeySerialises(t *testing.T) {
	var km keyedmutex.Mutex[string]
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(context.Background(), "a")
			if err != nil {
				t.Error(err)
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	if maxInside.Load() != 1 {
		t.Fatalf("max concurrent holders = %d", maxInside.Load())
	}
	if km.Len() != 0 {
		t.Fatalf("entries left: %d", km.Len())
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	var km keyedmutex.Mutex[int]
	unlockA, _ := km.Lock(context.Background(), 1)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := km.Lock(ctx, 2)
	if err != nil {
		t.Fatalf("lock other key: %v", err)
	}
	unlockB()
}

func TestLockHonoursContext(t *testing.T) {
	var km keyedmutex.Mutex[int]
	unlock, _ := km.Lock(context.Background(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := km.Lock(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	unlock()
	unlock()
	if km.Len() != 0 {
		t.Fatalf("entries left: %d", km.Len())
	}
}
