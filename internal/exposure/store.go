package exposure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/envhealth/exposure-api/internal/kv"
)

// ErrNotFound is returned when no record exists for a cell.
var ErrNotFound = errors.New("no record for cell")

const (
	cellKeyPrefix  = "cells/"
	leaseKeyPrefix = "leases/"
)

// RecordStore persists cell records in the key-value store under
// cells/{cellId}.json. Put overwrites unconditionally; concurrent writers to
// the same cell race with last write wins. The regeneration lease narrows
// that window when the backend supports conditional writes.
type RecordStore struct {
	store kv.Store
}

// NewRecordStore wraps a key-value backend.
func NewRecordStore(store kv.Store) *RecordStore {
	return &RecordStore{store: store}
}

func cellKey(cellID string) string {
	return cellKeyPrefix + cellID + ".json"
}

// Get loads the record for a cell, or ErrNotFound.
func (s *RecordStore) Get(ctx context.Context, cellID string) (*Record, error) {
	raw, err := s.store.Get(ctx, cellKey(cellID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading record for %s: %w", cellID, err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding record for %s: %w", cellID, err)
	}
	return &rec, nil
}

// Put stores the record, attaching cache-control metadata derived from the
// freshness window it was produced under.
func (s *RecordStore) Put(ctx context.Context, rec *Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record for %s: %w", rec.CellID, err)
	}

	meta := &kv.Metadata{
		ContentType:  "application/json",
		CacheControl: fmt.Sprintf("max-age=%d", int(ttl.Seconds())),
		LastUpdated:  rec.LastUpdated,
	}
	if err := s.store.Put(ctx, cellKey(rec.CellID), raw, meta); err != nil {
		return fmt.Errorf("storing record for %s: %w", rec.CellID, err)
	}
	return nil
}

// CellIDs lists every cell with a stored record. Used by the background news
// refresher.
func (s *RecordStore) CellIDs(ctx context.Context) ([]string, error) {
	keys, err := s.store.List(ctx, cellKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing cells: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id := strings.TrimPrefix(k, cellKeyPrefix)
		id = strings.TrimSuffix(id, ".json")
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// AcquireLease takes the per-cell regeneration lease so at most one caller
// fans out for a cell at a time. It reports true when the backend does not
// support conditional writes: without that capability every caller behaves
// as the winner and duplicate fan-outs are accepted.
func (s *RecordStore) AcquireLease(ctx context.Context, cellID string, ttl time.Duration) bool {
	locker, ok := s.store.(kv.Locker)
	if !ok {
		return true
	}
	acquired, err := locker.PutIfAbsent(ctx, leaseKeyPrefix+cellID, []byte(fmt.Sprint(time.Now().Unix())), ttl)
	if err != nil {
		// Lease failures never fail the request.
		return true
	}
	return acquired
}

// ReleaseLease drops the regeneration lease. Best effort; an unreleased
// lease simply expires.
func (s *RecordStore) ReleaseLease(ctx context.Context, cellID string) {
	if _, ok := s.store.(kv.Locker); !ok {
		return
	}
	_ = s.store.Delete(ctx, leaseKeyPrefix+cellID)
}
