package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLitePutGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "cells/abc.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	meta := &Metadata{ContentType: "application/json", CacheControl: "max-age=3600", LastUpdated: 12345}
	if err := s.Put(ctx, "cells/abc.json", []byte(`{"a":1}`), meta); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, "cells/abc.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Fatalf("unexpected value %q", got)
	}

	// Overwrite wins.
	if err := s.Put(ctx, "cells/abc.json", []byte(`{"a":2}`), nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err = s.Get(ctx, "cells/abc.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"a":2}` {
		t.Fatalf("unexpected value %q", got)
	}
}

func TestSQLiteListByPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"cells/a.json", "cells/b.json", "rate-limits/free/100.json"} {
		if err := s.Put(ctx, k, []byte("x"), nil); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	keys, err := s.List(ctx, "cells/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 || keys[0] != "cells/a.json" || keys[1] != "cells/b.json" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestSQLiteIncrement(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour)
	for want := int64(1); want <= 3; want++ {
		got, err := s.Increment(ctx, "rate-limits/free/100", expires)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Fatalf("count = %d, want %d", got, want)
		}
	}

	// An expired counter restarts from 1.
	if _, err := s.Increment(ctx, "expired", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("increment: %v", err)
	}
	got, err := s.Increment(ctx, "expired", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got != 1 {
		t.Fatalf("expired counter restarted at %d, want 1", got)
	}
}

func TestSQLitePutIfAbsent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.PutIfAbsent(ctx, "leases/abc", []byte("owner-1"), time.Minute)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if !ok {
		t.Fatal("first acquire should win")
	}

	ok, err = s.PutIfAbsent(ctx, "leases/abc", []byte("owner-2"), time.Minute)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second acquire should lose while the lease is live")
	}

	// Releasing the lease frees the key.
	if err := s.Delete(ctx, "leases/abc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err = s.PutIfAbsent(ctx, "leases/abc", []byte("owner-3"), time.Minute)
	if err != nil {
		t.Fatalf("third acquire: %v", err)
	}
	if !ok {
		t.Fatal("acquire after release should win")
	}
}
