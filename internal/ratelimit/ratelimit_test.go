package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/envhealth/exposure-api/internal/kv"
)

// rmwStore hides the capability interfaces of MemoryStore so tests can
// exercise the read-modify-write fallback.
type rmwStore struct {
	inner kv.Store
}

func (s rmwStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.inner.Get(ctx, key)
}

func (s rmwStore) Put(ctx context.Context, key string, value []byte, meta *kv.Metadata) error {
	return s.inner.Put(ctx, key, value, meta)
}

func (s rmwStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s rmwStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// brokenStore fails every operation, to exercise fail-open behavior.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("storage unreachable")
}
func (brokenStore) Put(context.Context, string, []byte, *kv.Metadata) error {
	return errors.New("storage unreachable")
}
func (brokenStore) Delete(context.Context, string) error { return errors.New("storage unreachable") }
func (brokenStore) List(context.Context, string) ([]string, error) {
	return nil, errors.New("storage unreachable")
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// bucketBase is a deterministic instant inside the current hour. Keeping it
// near the real clock matters because the stores expire counters against
// wall time.
func bucketBase() time.Time {
	return time.Now().Truncate(time.Hour).Add(time.Minute)
}

func testLimits() map[string]int {
	return map[string]int{"free": 3, "premium": 5}
}

func TestCheckCountsDownToZeroThenDenies(t *testing.T) {
	stores := map[string]kv.Store{
		"atomic":            kv.NewMemoryStore(),
		"read-modify-write": rmwStore{kv.NewMemoryStore()},
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			l := New(store, testLimits())
			l.now = fixedClock(bucketBase())
			ctx := context.Background()

			for want := 2; want >= 0; want-- {
				res := l.Check(ctx, "free")
				if !res.Allowed {
					t.Fatalf("request %d should be allowed", 3-want)
				}
				if res.Remaining != want {
					t.Fatalf("remaining = %d, want %d", res.Remaining, want)
				}
			}

			// The (L+1)-th request in the same bucket is denied.
			res := l.Check(ctx, "free")
			if res.Allowed {
				t.Fatal("request over the limit should be denied")
			}
			if res.Remaining != 0 {
				t.Fatalf("remaining after denial = %d, want 0", res.Remaining)
			}
		})
	}
}

func TestCheckResetsAtBucketBoundary(t *testing.T) {
	store := kv.NewMemoryStore()
	l := New(store, testLimits())
	ctx := context.Background()

	start := bucketBase()
	l.now = fixedClock(start)
	for i := 0; i < 4; i++ {
		l.Check(ctx, "free")
	}
	if res := l.Check(ctx, "free"); res.Allowed {
		t.Fatal("bucket should be exhausted")
	}

	// Crossing the hour boundary switches keys, so the count starts over.
	l.now = fixedClock(start.Add(time.Hour))
	res := l.Check(ctx, "free")
	if !res.Allowed {
		t.Fatal("first request of the new bucket should be allowed")
	}
	if res.Remaining != 2 {
		t.Fatalf("remaining = %d, want 2", res.Remaining)
	}
}

func TestCheckTiersAreIndependent(t *testing.T) {
	l := New(kv.NewMemoryStore(), testLimits())
	l.now = fixedClock(bucketBase())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.Check(ctx, "free")
	}
	if res := l.Check(ctx, "free"); res.Allowed {
		t.Fatal("free tier should be exhausted")
	}
	if res := l.Check(ctx, "premium"); !res.Allowed || res.Remaining != 4 {
		t.Fatalf("premium tier should be untouched, got %+v", res)
	}
}

func TestCheckFailsOpenOnStorageErrors(t *testing.T) {
	l := New(brokenStore{}, testLimits())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res := l.Check(ctx, "free")
		if !res.Allowed {
			t.Fatal("check must fail open when storage is unreachable")
		}
		if res.Remaining != 3 {
			t.Fatalf("fail-open remaining = %d, want full limit", res.Remaining)
		}
	}
}

func TestCheckUnknownTierUsesFreeLimit(t *testing.T) {
	l := New(kv.NewMemoryStore(), testLimits())
	l.now = fixedClock(bucketBase())

	res := l.Check(context.Background(), "enterprise")
	if !res.Allowed || res.Remaining != 2 {
		t.Fatalf("unknown tier should get the free limit, got %+v", res)
	}
}

func TestCheckResetAtIsTopOfNextHour(t *testing.T) {
	l := New(kv.NewMemoryStore(), testLimits())
	now := bucketBase().Add(123 * time.Second)
	l.now = fixedClock(now)

	res := l.Check(context.Background(), "free")
	wantReset := time.Unix(now.Unix()/3600*3600+3600, 0)
	if !res.ResetAt.Equal(wantReset) {
		t.Fatalf("resetAt = %v, want %v", res.ResetAt, wantReset)
	}
}
