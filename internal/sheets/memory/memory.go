package memory

import (
	"context"
	"fmt"
	"sync"

	"eventfin/internal/core"
	ports "eventfin/internal/sheets"
)

var _ ports.ReportWriter = (*Store)(nil)

// Store keeps appended reports in memory. It stands in for Google Sheets
// when no spreadsheet is configured.
type Store struct {
	mu    sync.Mutex
	items []core.EventReport
}

func New() *Store {
	return &Store{}
}

// AppendReport stores the report and returns a synthetic row reference.
func (s *Store) AppendReport(_ context.Context, r core.EventReport) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, r)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Reports returns a copy of the stored reports in append order.
func (s *Store) Reports() []core.EventReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.EventReport(nil), s.items...)
}
