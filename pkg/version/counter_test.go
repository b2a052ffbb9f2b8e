package version

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/html-edge-cache/pkg/cache"
)

var testLogger = zerolog.New(os.Stderr).Level(zerolog.Disabled)

// plainStore hides MemoryStore's Incr to exercise read-increment-write.
type plainStore struct {
	inner *cache.MemoryStore
	gets  int
	mu    sync.Mutex
}

func (p *plainStore) Get(ctx context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	p.gets++
	p.mu.Unlock()
	return p.inner.Get(ctx, key)
}

func (p *plainStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.inner.Set(ctx, key, value, ttl)
}

func (p *plainStore) Ping(ctx context.Context) error { return nil }
func (p *plainStore) Close() error                   { return nil }

func (p *plainStore) getCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gets
}

func TestCounter_Unconfigured(t *testing.T) {
	c := NewCounter(nil, testLogger)
	if c.Configured() {
		t.Error("Configured() = true for nil store")
	}
	v, err := c.Current(context.Background())
	if err != nil || v != Unconfigured {
		t.Errorf("Current() = %d, %v, want -1, nil", v, err)
	}
	if _, err := c.Bump(context.Background(), 0); !errors.Is(err, cache.ErrNotConfigured) {
		t.Errorf("Bump() error = %v, want ErrNotConfigured", err)
	}
}

func TestCounter_MissingKeyIsZero(t *testing.T) {
	c := NewCounter(cache.NewMemoryStore(), testLogger)
	v, err := c.Current(context.Background())
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if v != 0 {
		t.Errorf("Current() = %d, want 0", v)
	}
}

func TestCounter_InitializesMissingKey(t *testing.T) {
	store := cache.NewMemoryStore()
	ctx := context.Background()
	if _, err := NewCounter(store, testLogger).Current(ctx); err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	raw, err := store.Get(ctx, DefaultKey)
	if err != nil {
		t.Fatalf("version not persisted: %v", err)
	}
	if string(raw) != "0" {
		t.Errorf("persisted version = %q, want 0", raw)
	}
}

func TestCounter_BumpAtomic(t *testing.T) {
	store := cache.NewMemoryStore()
	ctx := context.Background()
	_ = store.Set(ctx, DefaultKey, []byte("3"), 0)

	c := NewCounter(store, testLogger)
	next, err := c.Bump(ctx, 3)
	if err != nil {
		t.Fatalf("Bump() error = %v", err)
	}
	if next != 4 {
		t.Errorf("Bump() = %d, want 4", next)
	}
	v, _ := c.Current(ctx)
	if v != 4 {
		t.Errorf("Current() after bump = %d, want 4", v)
	}
	raw, _ := store.Get(ctx, DefaultKey)
	if string(raw) != "4" {
		t.Errorf("stored version = %q, want 4", raw)
	}
}

func TestCounter_BumpReadIncrementWrite(t *testing.T) {
	tests := []struct {
		name    string
		stored  string
		current int64
		want    int64
	}{
		{name: "uses caller view", stored: "3", current: 3, want: 4},
		{name: "reads when unknown", stored: "7", current: -1, want: 8},
		{name: "missing key", stored: "", current: -1, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &plainStore{inner: cache.NewMemoryStore()}
			ctx := context.Background()
			if tt.stored != "" {
				_ = store.Set(ctx, DefaultKey, []byte(tt.stored), 0)
			}

			next, err := NewCounter(store, testLogger).Bump(ctx, tt.current)
			if err != nil {
				t.Fatalf("Bump() error = %v", err)
			}
			if next != tt.want {
				t.Errorf("Bump() = %d, want %d", next, tt.want)
			}
		})
	}
}

func TestCounter_Monotonic(t *testing.T) {
	c := NewCounter(cache.NewMemoryStore(), testLogger)
	ctx := context.Background()

	prev, _ := c.Current(ctx)
	for i := 0; i < 5; i++ {
		next, err := c.Bump(ctx, prev)
		if err != nil {
			t.Fatalf("Bump() error = %v", err)
		}
		if next <= prev {
			t.Fatalf("version went from %d to %d", prev, next)
		}
		prev = next
	}
}

func TestCounter_CachesReads(t *testing.T) {
	store := &plainStore{inner: cache.NewMemoryStore()}
	c := NewCounter(store, testLogger, WithTTL(time.Minute))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := c.Current(ctx); err != nil {
			t.Fatalf("Current() error = %v", err)
		}
	}
	if got := store.getCount(); got != 1 {
		t.Errorf("store reads = %d, want 1", got)
	}
}

func TestCounter_TTLExpiry(t *testing.T) {
	store := cache.NewMemoryStore()
	c := NewCounter(store, testLogger, WithTTL(20*time.Millisecond))
	ctx := context.Background()

	if v, _ := c.Current(ctx); v != 0 {
		t.Fatalf("Current() = %d, want 0", v)
	}

	// Another process bumps the shared counter.
	_ = store.Set(ctx, DefaultKey, []byte("9"), 0)

	if v, _ := c.Current(ctx); v != 0 {
		t.Errorf("Current() within TTL = %d, want cached 0", v)
	}
	time.Sleep(40 * time.Millisecond)
	if v, _ := c.Current(ctx); v != 9 {
		t.Errorf("Current() after TTL = %d, want 9", v)
	}
}

// stallingStore blocks its first Get until release is closed or the
// caller's context ends, then answers with the value held when the read
// began. Later reads are answered immediately.
type stallingStore struct {
	*cache.MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStallingStore(value string) *stallingStore {
	s := &stallingStore{
		MemoryStore: cache.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	_ = s.MemoryStore.Set(context.Background(), DefaultKey, []byte(value), 0)
	return s
}

func (s *stallingStore) Get(ctx context.Context, key string) ([]byte, error) {
	first := false
	s.once.Do(func() { first = true })
	if !first {
		return s.MemoryStore.Get(ctx, key)
	}

	value, err := s.MemoryStore.Get(ctx, key)
	close(s.entered)
	select {
	case <-s.release:
		return value, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCounter_SlowReadDoesNotBlockOthers(t *testing.T) {
	store := newStallingStore("5")
	c := NewCounter(store, testLogger, WithTTL(time.Minute))
	ctx := context.Background()

	stalled := make(chan error, 1)
	go func() {
		_, err := c.Current(ctx)
		stalled <- err
	}()
	<-store.entered

	done := make(chan int64, 1)
	go func() {
		v, _ := c.Current(ctx)
		done <- v
	}()

	select {
	case v := <-done:
		if v != 5 {
			t.Errorf("Current() = %d, want 5", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Current() blocked behind a stalled store read")
	}

	close(store.release)
	if err := <-stalled; err != nil {
		t.Errorf("stalled Current() error = %v", err)
	}
}

func TestCounter_ReadTimeout(t *testing.T) {
	store := newStallingStore("5")
	defer close(store.release)
	c := NewCounter(store, testLogger, WithReadTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := c.Current(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Current() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Current() took %v despite the read timeout", elapsed)
	}
}

func TestCounter_StaleReadKeepsNewerBump(t *testing.T) {
	store := newStallingStore("5")
	c := NewCounter(store, testLogger, WithTTL(time.Minute))
	ctx := context.Background()

	result := make(chan int64, 1)
	go func() {
		v, _ := c.Current(ctx)
		result <- v
	}()
	<-store.entered

	next, err := c.Bump(ctx, 5)
	if err != nil {
		t.Fatalf("Bump() error = %v", err)
	}
	close(store.release)
	if v := <-result; v != next {
		t.Errorf("overlapping Current() = %d, want bumped %d", v, next)
	}
	if v, _ := c.Current(ctx); v != next {
		t.Errorf("Current() after overlapping read = %d, want bumped %d", v, next)
	}
}

func TestCounter_CustomKey(t *testing.T) {
	store := cache.NewMemoryStore()
	c := NewCounter(store, testLogger, WithKey("site_a_version"))
	ctx := context.Background()
	if _, err := c.Bump(ctx, 0); err != nil {
		t.Fatalf("Bump() error = %v", err)
	}
	if _, err := store.Get(ctx, "site_a_version"); err != nil {
		t.Errorf("custom key not written: %v", err)
	}
}

func TestCounter_CorruptValue(t *testing.T) {
	store := cache.NewMemoryStore()
	_ = store.Set(context.Background(), DefaultKey, []byte("abc"), 0)
	if _, err := NewCounter(store, testLogger).Current(context.Background()); err == nil {
		t.Error("Current() should fail on a non-numeric version")
	}
}

func TestSnapshot_IsStale(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want bool
	}{
		{name: "zero", snap: Snapshot{}, want: true},
		{name: "fresh", snap: Snapshot{FetchedAt: time.Now()}, want: false},
		{name: "old", snap: Snapshot{FetchedAt: time.Now().Add(-time.Hour)}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.IsStale(time.Minute); got != tt.want {
				t.Errorf("IsStale() = %v, want %v", got, tt.want)
			}
		})
	}
}
