// Package memory provides an in-process orderstore.Store used when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coachpo/orderbroker/internal/domain/order"
	"github.com/coachpo/orderbroker/internal/domain/orderstore"
)

// Store keeps submissions and fill snapshots in maps guarded by a mutex.
type Store struct {
	mu          sync.RWMutex
	submissions []orderstore.Submission
	fills       map[string]order.FillRecord
}

var _ orderstore.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{fills: make(map[string]order.FillRecord)}
}

// RecordSubmission appends a submission receipt.
func (s *Store) RecordSubmission(_ context.Context, submission orderstore.Submission) error {
	if strings.TrimSpace(submission.ClientOrderID) == "" {
		return fmt.Errorf("memory store: client order id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, submission)
	return nil
}

// Submissions returns the receipts recorded for clientOrderID, oldest first. An empty id returns
// every receipt.
func (s *Store) Submissions(clientOrderID string) []orderstore.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]orderstore.Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		if clientOrderID == "" || sub.ClientOrderID == clientOrderID {
			out = append(out, sub)
		}
	}
	return out
}

// UpsertFill stores record unless a newer observation for the same order is already held.
func (s *Store) UpsertFill(_ context.Context, record order.FillRecord) error {
	id := strings.TrimSpace(record.OrderID)
	if id == "" {
		return fmt.Errorf("memory store: order id required")
	}
	if !record.Status.Valid() {
		return fmt.Errorf("memory store: invalid status %q", record.Status)
	}
	record.OrderID = id
	if record.ObservedAt.IsZero() {
		record.ObservedAt = time.Now()
	}
	record.ObservedAt = record.ObservedAt.UTC()
	record.CheckedAt = latest(record.CheckedAt.UTC(), record.ObservedAt)

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.fills[id]
	if ok && existing.ObservedAt.After(record.ObservedAt) {
		return nil
	}
	if ok {
		record.CheckedAt = latest(record.CheckedAt, existing.CheckedAt)
	}
	s.fills[id] = record
	return nil
}

// MarkChecked advances CheckedAt for the tracked ids in orderIDs.
func (s *Store) MarkChecked(_ context.Context, orderIDs []string, at time.Time) error {
	at = at.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range orderIDs {
		id = strings.TrimSpace(id)
		record, ok := s.fills[id]
		if !ok {
			continue
		}
		record.CheckedAt = latest(record.CheckedAt, at)
		s.fills[id] = record
	}
	return nil
}

// Fill returns the snapshot for orderID or orderstore.ErrNotFound.
func (s *Store) Fill(_ context.Context, orderID string) (order.FillRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.fills[strings.TrimSpace(orderID)]
	if !ok {
		return order.FillRecord{}, orderstore.ErrNotFound
	}
	return record, nil
}

// ListFills returns snapshots ordered by least recently checked first.
func (s *Store) ListFills(_ context.Context, query orderstore.FillQuery) ([]order.FillRecord, error) {
	s.mu.RLock()
	out := make([]order.FillRecord, 0, len(s.fills))
	for _, record := range s.fills {
		if query.TransientOnly && record.Terminal() {
			continue
		}
		out = append(out, record)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CheckedAt.Equal(out[j].CheckedAt) {
			return out[i].CheckedAt.Before(out[j].CheckedAt)
		}
		return out[i].OrderID < out[j].OrderID
	})
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
