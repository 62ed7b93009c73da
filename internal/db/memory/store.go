// Package memory is an in-process db.Store used by the local environment,
// the embedded SDK and tests. It evaluates filters with db.Matches.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/kailas-cloud/scout/internal/db"
)

var _ db.Store = (*Store)(nil)

// Store keeps records per kind behind a RWMutex.
type Store struct {
	mu      sync.RWMutex
	kinds   map[string]map[string]db.Record
	schemas map[string]db.Schema
	closed  bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		kinds:   make(map[string]map[string]db.Record),
		schemas: make(map[string]db.Schema),
	}
}

// Ping reports an error once the store is closed.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &db.Error{Op: db.OpPing, Err: fmt.Errorf("store closed")}
	}
	return nil
}

// Close marks the store closed. Data stays readable for inspection.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

// EnsureSchema records the kind. Repeated calls are no-ops.
func (s *Store) EnsureSchema(_ context.Context, schema *db.Schema) error {
	if schema == nil || schema.Kind == "" {
		return fmt.Errorf("%w: schema kind is required", db.ErrInvalidQuery)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[schema.Kind] = *schema
	if _, ok := s.kinds[schema.Kind]; !ok {
		s.kinds[schema.Kind] = make(map[string]db.Record)
	}
	return nil
}

// Upsert stores a copy of rec, keeping the larger last activity.
func (s *Store) Upsert(ctx context.Context, rec *db.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.ID == "" || rec.Kind == "" {
		return fmt.Errorf("%w: id and kind are required", db.ErrInvalidQuery)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.kinds[rec.Kind]
	if !ok {
		rows = make(map[string]db.Record)
		s.kinds[rec.Kind] = rows
	}
	next := cloneRecord(rec)
	if cur, ok := rows[rec.ID]; ok && cur.LastActivityMs > next.LastActivityMs {
		next.LastActivityMs = cur.LastActivityMs
	}
	rows[rec.ID] = next
	return nil
}

// Touch moves last activity forward.
func (s *Store) Touch(ctx context.Context, kind, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.kinds[kind][id]
	if !ok {
		return db.ErrKeyNotFound
	}
	if ms := at.UnixMilli(); ms > rec.LastActivityMs {
		rec.LastActivityMs = ms
		s.kinds[kind][id] = rec
	}
	return nil
}

// Get returns a copy of one record.
func (s *Store) Get(_ context.Context, kind, id string) (*db.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.kinds[kind][id]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	out := cloneRecord(&rec)
	return &out, nil
}

// Fetch scans the kind, filters with db.Matches and returns the first
// q.Limit rows in the requested order.
func (s *Store) Fetch(ctx context.Context, q *db.FetchQuery) ([]db.Record, error) {
	if q.Kind == "" {
		return nil, fmt.Errorf("%w: kind is required", db.ErrInvalidQuery)
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", db.ErrInvalidQuery)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	rows, ok := s.kinds[q.Kind]
	if !ok {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", db.ErrNotConfigured, q.Kind)
	}
	out := make([]db.Record, 0, min(len(rows), q.Limit))
	for _, r := range rows {
		if db.Matches(&r, q.Filters) {
			out = append(out, cloneRecord(&r))
		}
	}
	s.mu.RUnlock()

	db.Sort(out, q.Order)
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Len returns the number of stored records of a kind.
func (s *Store) Len(kind string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.kinds[kind])
}

func cloneRecord(r *db.Record) db.Record {
	c := *r
	if r.Lat != nil {
		lat := *r.Lat
		c.Lat = &lat
	}
	if r.Lon != nil {
		lon := *r.Lon
		c.Lon = &lon
	}
	if r.BirthDateMs != nil {
		b := *r.BirthDateMs
		c.BirthDateMs = &b
	}
	c.Tags = maps.Clone(r.Tags)
	c.Numerics = maps.Clone(r.Numerics)
	c.Flags = maps.Clone(r.Flags)
	if r.Sets != nil {
		c.Sets = make(map[string][]string, len(r.Sets))
		for k, v := range r.Sets {
			c.Sets[k] = slices.Clone(v)
		}
	}
	return c
}
