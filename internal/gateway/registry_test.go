package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeRegistrar records realtime store calls in order.
type fakeRegistrar struct {
	mu         sync.Mutex
	registered map[string]int
	calls      []string
	failNext   error
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{registered: make(map[string]int)}
}

func (f *fakeRegistrar) Register(_ context.Context, key, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.registered[key]++
	f.calls = append(f.calls, "register "+key)
	return nil
}

func (f *fakeRegistrar) Unregister(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[key]--
	f.calls = append(f.calls, "unregister "+key)
	return nil
}

func (f *fakeRegistrar) Clean(_ context.Context, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "clean")
	return 3, nil
}

func (f *fakeRegistrar) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered[key]
}

func TestRegistrySubscribeIdempotent(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRegistrar()
	reg := NewRegistry("gw-1", fake, nil)

	const key = "BINANCE:BTCUSDT@KLINE_60"
	for i := 0; i < 3; i++ {
		if err := reg.Subscribe(ctx, "sess-a", key); err != nil {
			t.Fatalf("Subscribe error: %v", err)
		}
	}
	if err := reg.Subscribe(ctx, "sess-b", key); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	// One materialisation no matter how many sessions or repeats.
	if got := fake.count(key); got != 1 {
		t.Errorf("register calls = %d, want 1", got)
	}
	if reg.Size() != 1 {
		t.Errorf("Size() = %d, want 1", reg.Size())
	}
}

func TestRegistryUnsubscribeTeardown(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRegistrar()
	reg := NewRegistry("gw-1", fake, nil)

	const key = "BINANCE:BTCUSDT@QUOTES"
	reg.Subscribe(ctx, "sess-a", key)
	reg.Subscribe(ctx, "sess-b", key)

	if err := reg.Unsubscribe(ctx, "sess-a", key); err != nil {
		t.Fatalf("Unsubscribe error: %v", err)
	}
	if got := fake.count(key); got != 1 {
		t.Errorf("row torn down while a session remained, count = %d", got)
	}

	if err := reg.Unsubscribe(ctx, "sess-b", key); err != nil {
		t.Fatalf("Unsubscribe error: %v", err)
	}
	if got := fake.count(key); got != 0 {
		t.Errorf("row not torn down after last session, count = %d", got)
	}
	if reg.Size() != 0 {
		t.Errorf("Size() = %d, want 0", reg.Size())
	}
}

func TestRegistrySignalKeysStayLocal(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRegistrar()
	reg := NewRegistry("gw-1", fake, nil)

	if err := reg.Subscribe(ctx, "sess-a", "SIGNAL:abc-123"); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	if err := reg.Subscribe(ctx, "sess-a", "BINANCE:*"); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	if len(fake.calls) != 0 {
		t.Errorf("signal/wildcard keys hit the store: %v", fake.calls)
	}
	if reg.Size() != 2 {
		t.Errorf("Size() = %d, want 2", reg.Size())
	}
}

func TestRegistrySubscribeRollback(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRegistrar()
	fake.failNext = errors.New("db down")
	reg := NewRegistry("gw-1", fake, nil)

	const key = "BINANCE:BTCUSDT@KLINE_60"
	if err := reg.Subscribe(ctx, "sess-a", key); err == nil {
		t.Fatal("Subscribe = nil error, want failure")
	}

	// The key must be retryable: next subscribe materialises again.
	if err := reg.Subscribe(ctx, "sess-a", key); err != nil {
		t.Fatalf("retry Subscribe error: %v", err)
	}
	if got := fake.count(key); got != 1 {
		t.Errorf("register calls after retry = %d, want 1", got)
	}
}

func TestRegistryMalformedKeyRejected(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRegistrar()
	reg := NewRegistry("gw-1", fake, nil)

	if err := reg.Subscribe(ctx, "sess-a", "not-a-key"); err == nil {
		t.Fatal("Subscribe(malformed) = nil error, want failure")
	}
	if len(fake.calls) != 0 {
		t.Errorf("malformed key hit the store: %v", fake.calls)
	}
}

func TestRegistryDropSession(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRegistrar()
	reg := NewRegistry("gw-1", fake, nil)

	reg.Subscribe(ctx, "sess-a", "BINANCE:BTCUSDT@KLINE_60")
	reg.Subscribe(ctx, "sess-a", "SIGNAL:abc")
	reg.Subscribe(ctx, "sess-b", "BINANCE:BTCUSDT@KLINE_60")

	reg.DropSession(ctx, "sess-a")

	if keys := reg.Keys("sess-a"); len(keys) != 0 {
		t.Errorf("Keys(sess-a) = %v after drop", keys)
	}
	if keys := reg.Keys("sess-b"); len(keys) != 1 {
		t.Errorf("Keys(sess-b) = %v, want one key", keys)
	}
	// sess-b still holds the kline key.
	if got := fake.count("BINANCE:BTCUSDT@KLINE_60"); got != 1 {
		t.Errorf("row torn down while sess-b remained, count = %d", got)
	}
}

func TestRegistryCleanStart(t *testing.T) {
	fake := newFakeRegistrar()
	reg := NewRegistry("gw-1", fake, nil)

	if err := reg.CleanStart(context.Background()); err != nil {
		t.Fatalf("CleanStart error: %v", err)
	}
	if len(fake.calls) != 1 || fake.calls[0] != "clean" {
		t.Errorf("calls = %v, want [clean]", fake.calls)
	}
}
