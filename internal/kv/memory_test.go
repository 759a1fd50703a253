package kv

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryPutGetDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Put(ctx, "cells/a.json", []byte("one"), nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "cells/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "one" {
		t.Fatalf("unexpected value %q", got)
	}

	if err := s.Delete(ctx, "cells/a.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "cells/a.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryLease(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.PutIfAbsent(ctx, "leases/a", []byte("x"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = s.PutIfAbsent(ctx, "leases/a", []byte("y"), time.Minute)
	if err != nil || ok {
		t.Fatalf("second acquire = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestMemoryIncrementRollover(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if n, _ := s.Increment(ctx, "c", time.Now().Add(time.Hour)); n != 1 {
		t.Fatalf("first increment = %d, want 1", n)
	}
	if n, _ := s.Increment(ctx, "c", time.Now().Add(time.Hour)); n != 2 {
		t.Fatalf("second increment = %d, want 2", n)
	}
}
