package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"testbridge/internal/common/cache"
	"testbridge/internal/dashboard/model"
	appErr "testbridge/pkg/errors"

	"github.com/alicebob/miniredis/v2"
)

type storeFactory func(t *testing.T) ResultStore

func resultStoreFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) ResultStore {
			return NewMemoryResultStore()
		},
		"redis": func(t *testing.T) ResultStore {
			srv := miniredis.RunT(t)
			client, err := cache.NewRedisCacheWithConfig(&cache.RedisConfig{Addr: srv.Addr()})
			if err != nil {
				t.Fatalf("new redis cache failed: %v", err)
			}
			t.Cleanup(func() { _ = client.Close() })
			store := NewRedisResultStore(client, "")
			if err := store.Init(context.Background()); err != nil {
				t.Fatalf("init store failed: %v", err)
			}
			return store
		},
	}
}

func mustConsume(t *testing.T, s ResultStore) model.Verdict {
	t.Helper()
	v, err := s.Consume(context.Background())
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	return v
}

func TestResultStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, factory := range resultStoreFactories() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			t.Run("starts pending", func(t *testing.T) {
				s := factory(t)
				if got := mustConsume(t, s); got != model.VerdictPending {
					t.Fatalf("got %q", got)
				}
			})

			t.Run("consume once", func(t *testing.T) {
				for _, v := range []model.Verdict{model.VerdictPass, model.VerdictFail} {
					s := factory(t)
					if err := s.Submit(ctx, v); err != nil {
						t.Fatalf("submit failed: %v", err)
					}
					if got := mustConsume(t, s); got != v {
						t.Fatalf("first consume = %q, want %q", got, v)
					}
					if got := mustConsume(t, s); got != model.VerdictPending {
						t.Fatalf("second consume = %q, want Pending", got)
					}
				}
			})

			t.Run("idempotent pending read", func(t *testing.T) {
				s := factory(t)
				for i := 0; i < 5; i++ {
					if got := mustConsume(t, s); got != model.VerdictPending {
						t.Fatalf("consume %d = %q", i, got)
					}
				}
			})

			t.Run("reset dominance", func(t *testing.T) {
				for _, before := range []model.Verdict{model.VerdictPending, model.VerdictPass, model.VerdictFail} {
					s := factory(t)
					if before.IsTerminal() {
						if err := s.Submit(ctx, before); err != nil {
							t.Fatalf("submit failed: %v", err)
						}
					}
					if err := s.Reset(ctx); err != nil {
						t.Fatalf("reset failed: %v", err)
					}
					if got := mustConsume(t, s); got != model.VerdictPending {
						t.Fatalf("after reset from %q consume = %q", before, got)
					}
				}
			})

			t.Run("invalid submit leaves state", func(t *testing.T) {
				s := factory(t)
				if err := s.Submit(ctx, model.VerdictFail); err != nil {
					t.Fatalf("submit failed: %v", err)
				}
				for _, bad := range []model.Verdict{model.VerdictPending, "pass", "", "maybe"} {
					if err := s.Submit(ctx, bad); !appErr.Is(err, appErr.InvalidVerdict) {
						t.Fatalf("submit(%q) = %v, want InvalidVerdict", bad, err)
					}
				}
				if got := mustConsume(t, s); got != model.VerdictFail {
					t.Fatalf("state changed by invalid submit: %q", got)
				}
			})

			t.Run("overwrite before consume", func(t *testing.T) {
				s := factory(t)
				_ = s.Submit(ctx, model.VerdictPass)
				_ = s.Submit(ctx, model.VerdictFail)
				if got := mustConsume(t, s); got != model.VerdictFail {
					t.Fatalf("got %q, want latest submission", got)
				}
			})

			t.Run("scenario", func(t *testing.T) {
				s := factory(t)
				if err := s.Reset(ctx); err != nil {
					t.Fatalf("reset failed: %v", err)
				}
				verdict, err := model.ParseVerdict("fail")
				if err != nil {
					t.Fatalf("parse failed: %v", err)
				}
				if err := s.Submit(ctx, verdict); err != nil {
					t.Fatalf("submit failed: %v", err)
				}
				if got := mustConsume(t, s); got != model.VerdictFail {
					t.Fatalf("got %q", got)
				}
				if got := mustConsume(t, s); got != model.VerdictPending {
					t.Fatalf("got %q", got)
				}
			})
		})
	}
}

// Each submission waits until some poller has taken it, so exactly-once
// delivery means the number of terminal reads equals the number of submits.
func TestResultStoreConcurrentHandoffDeliversOnce(t *testing.T) {
	const submissions = 200
	const pollers = 8
	ctx := context.Background()

	for name, factory := range resultStoreFactories() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			delivered := make(chan model.Verdict, submissions)
			done := make(chan struct{})
			var terminalReads atomic.Int64
			var wg sync.WaitGroup

			for i := 0; i < pollers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						select {
						case <-done:
							return
						default:
						}
						v, err := s.Consume(ctx)
						if err != nil {
							t.Errorf("consume failed: %v", err)
							return
						}
						if !v.IsValid() {
							t.Errorf("torn verdict %q", v)
							return
						}
						if v.IsTerminal() {
							terminalReads.Add(1)
							delivered <- v
						}
					}
				}()
			}

			for i := 0; i < submissions; i++ {
				want := model.VerdictPass
				if i%2 == 1 {
					want = model.VerdictFail
				}
				if err := s.Submit(ctx, want); err != nil {
					t.Fatalf("submit failed: %v", err)
				}
				if got := <-delivered; got != want {
					t.Fatalf("submission %d delivered %q, want %q", i, got, want)
				}
			}
			close(done)
			wg.Wait()

			if n := terminalReads.Load(); n != submissions {
				t.Fatalf("terminal reads = %d, want %d", n, submissions)
			}
			if got := mustConsume(t, s); got != model.VerdictPending {
				t.Fatalf("final state = %q", got)
			}
		})
	}
}

// Mixed concurrent operations never produce a value outside the verdict set,
// and every terminal read is backed by a submission.
func TestResultStoreConcurrentMixedOperations(t *testing.T) {
	const workers = 16
	const iterations = 200
	ctx := context.Background()

	s := NewMemoryResultStore()
	var submits, terminalReads atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				switch (w + i) % 4 {
				case 0:
					if err := s.Submit(ctx, model.VerdictPass); err == nil {
						submits.Add(1)
					}
				case 1:
					if err := s.Submit(ctx, model.VerdictFail); err == nil {
						submits.Add(1)
					}
				case 2:
					_ = s.Reset(ctx)
				default:
					v, _ := s.Consume(ctx)
					if !v.IsValid() {
						t.Errorf("torn verdict %q", v)
					}
					if v.IsTerminal() {
						terminalReads.Add(1)
					}
				}
			}
		}(w)
	}
	wg.Wait()

	if terminalReads.Load() > submits.Load() {
		t.Fatalf("terminal reads %d exceed submits %d", terminalReads.Load(), submits.Load())
	}
}

func TestRedisResultStoreRepairsUnknownValue(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := cache.NewRedisCacheWithConfig(&cache.RedisConfig{Addr: srv.Addr()})
	if err != nil {
		t.Fatalf("new redis cache failed: %v", err)
	}
	defer func() { _ = client.Close() }()
	store := NewRedisResultStore(client, "slot")

	if got := mustConsume(t, store); got != model.VerdictPending {
		t.Fatalf("missing key should read as Pending, got %q", got)
	}
	if v, _ := srv.Get("slot"); v != "Pending" {
		t.Fatalf("expected key initialized, got %q", v)
	}

	_ = srv.Set("slot", "garbage")
	if got := mustConsume(t, store); got != model.VerdictPending {
		t.Fatalf("unknown value should read as Pending, got %q", got)
	}
	if v, _ := srv.Get("slot"); v != "Pending" {
		t.Fatalf("expected repaired slot, got %q", v)
	}

	if err := store.Submit(context.Background(), model.VerdictPass); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if v, _ := srv.Get("slot"); v != "Pass" {
		t.Fatalf("expected plain verdict string in redis, got %q", v)
	}
}

func TestRedisResultStoreReportsCacheErrors(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := cache.NewRedisCacheWithConfig(&cache.RedisConfig{Addr: srv.Addr()})
	if err != nil {
		t.Fatalf("new redis cache failed: %v", err)
	}
	defer func() { _ = client.Close() }()
	store := NewRedisResultStore(client, "")
	srv.Close()

	if _, err := store.Consume(context.Background()); !appErr.Is(err, appErr.CacheError) {
		t.Fatalf("expected CacheError, got %v", err)
	}
	if err := store.Reset(context.Background()); !appErr.Is(err, appErr.CacheError) {
		t.Fatalf("expected CacheError, got %v", err)
	}

	nilStore := NewRedisResultStore(nil, "")
	if err := nilStore.Submit(context.Background(), model.VerdictPass); !appErr.Is(err, appErr.CacheError) {
		t.Fatalf("expected CacheError for nil cache, got %v", err)
	}
}

func TestRedisResultStoreInitKeepsExistingVerdict(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := cache.NewRedisCacheWithConfig(&cache.RedisConfig{Addr: srv.Addr()})
	if err != nil {
		t.Fatalf("new redis cache failed: %v", err)
	}
	defer func() { _ = client.Close() }()

	first := NewRedisResultStore(client, "slot")
	if err := first.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if v, _ := srv.Get("slot"); v != "Pending" {
		t.Fatalf("expected Pending after init, got %q", v)
	}
	if err := first.Submit(context.Background(), model.VerdictFail); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	second := NewRedisResultStore(client, "slot")
	if err := second.Init(context.Background()); err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	if got := mustConsume(t, second); got != model.VerdictFail {
		t.Fatalf("a starting replica must not clobber the verdict, got %q", got)
	}
}
