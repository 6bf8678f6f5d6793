package kv

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: err = %v, want ErrNotFound", err)
	}

	if err := m.Set(ctx, "timer", []byte(`{"durationSeconds":600}`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := m.Get(ctx, "timer")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"durationSeconds":600}` {
		t.Errorf("get = %s", got)
	}

	if err := m.Delete(ctx, "timer"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Get(ctx, "timer"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	buf := []byte("original")
	m.Set(ctx, "k", buf)
	buf[0] = 'X'

	got, _ := m.Get(ctx, "k")
	if string(got) != "original" {
		t.Errorf("stored value mutated through caller slice: %s", got)
	}

	got[0] = 'Y'
	again, _ := m.Get(ctx, "k")
	if string(again) != "original" {
		t.Errorf("stored value mutated through returned slice: %s", again)
	}
}

func TestMemoryDeleteMissing(t *testing.T) {
	if err := NewMemory().Delete(context.Background(), "nope"); err != nil {
		t.Errorf("delete missing: %v", err)
	}
}
