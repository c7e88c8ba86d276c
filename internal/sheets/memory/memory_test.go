package memory

import (
	"context"
	"testing"
	"time"

	"conti/internal/core"
	"conti/internal/sheets"
)

func TestMemoryStoreAppendAndHas(t *testing.T) {
	s := New()
	row := sheets.RowFromPosting(core.NewCarryforwardPosting(core.Month{Year: 2026, Month: time.February}, core.Money{Cents: 1500}))

	has, err := s.HasCarryforward(context.Background(), row)
	if err != nil || has {
		t.Fatalf("unexpected has before append: has=%v err=%v", has, err)
	}

	ref, err := s.AppendCarryforward(context.Background(), row)
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}

	has, err = s.HasCarryforward(context.Background(), row)
	if err != nil || !has {
		t.Fatalf("unexpected has after append: has=%v err=%v", has, err)
	}
	if rows := s.Rows(); len(rows) != 1 || rows[0].Notes != "Carryforward from 2026-02" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestMemoryStoreRejectsRowWithoutKey(t *testing.T) {
	s := New()
	if _, err := s.AppendCarryforward(context.Background(), sheets.CarryforwardRow{}); err == nil {
		t.Fatal("expected error for row without idempotency key")
	}
}
