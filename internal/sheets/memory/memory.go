package memory

import (
	"context"
	"fmt"
	"sync"

	"conti/internal/sheets"
)

var _ sheets.Report = (*Store)(nil)

// Store keeps report rows in memory. It backs the worker when no
// spreadsheet is configured, and the tests.
type Store struct {
	mu   sync.Mutex
	rows []sheets.CarryforwardRow
}

func New() *Store {
	return &Store{}
}

// AppendCarryforward stores the row and returns a synthetic row reference.
func (s *Store) AppendCarryforward(_ context.Context, row sheets.CarryforwardRow) (string, error) {
	if row.IdempotencyKey == "" {
		return "", fmt.Errorf("report row for %s has no idempotency key", row.SourceMonth)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) HasCarryforward(_ context.Context, row sheets.CarryforwardRow) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.IdempotencyKey == row.IdempotencyKey {
			return true, nil
		}
	}
	return false, nil
}

// Rows returns a copy of the stored rows in append order.
func (s *Store) Rows() []sheets.CarryforwardRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.CarryforwardRow(nil), s.rows...)
}
