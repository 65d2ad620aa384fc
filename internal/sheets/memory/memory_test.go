package memory

import (
	"context"
	"sync"
	"testing"

	"eventfin/internal/core"
)

func TestStore_AppendReport(t *testing.T) {
	s := New()

	ref, err := s.AppendReport(context.Background(), core.EventReport{Event: core.Event{ID: 1}})
	if err != nil {
		t.Fatalf("AppendReport error: %v", err)
	}
	if ref != "mem:1" {
		t.Errorf("ref = %q, want mem:1", ref)
	}

	ref, _ = s.AppendReport(context.Background(), core.EventReport{Event: core.Event{ID: 2}})
	if ref != "mem:2" {
		t.Errorf("ref = %q, want mem:2", ref)
	}

	got := s.Reports()
	if len(got) != 2 || got[0].Event.ID != 1 || got[1].Event.ID != 2 {
		t.Fatalf("unexpected reports: %+v", got)
	}

	// Returned slice is a copy.
	got[0].Event.ID = 99
	if s.Reports()[0].Event.ID != 1 {
		t.Error("Reports should return a copy")
	}
}

func TestStore_ConcurrentAppend(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.AppendReport(context.Background(), core.EventReport{})
		}()
	}
	wg.Wait()

	if n := len(s.Reports()); n != 50 {
		t.Errorf("expected 50 reports, got %d", n)
	}
}
