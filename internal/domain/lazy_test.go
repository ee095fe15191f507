package domain

import (
	"errors"
	"testing"
)

func TestLazyForcesExactlyOnce(t *testing.T) {
	calls := 0
	cell := NewLazy(func() (int, error) {
		calls++
		return 42, nil
	})

	if cell.Forced() {
		t.Fatal("cell reported forced before first access")
	}

	for i := 0; i < 3; i++ {
		value, err := cell.Force()
		if err != nil {
			t.Fatalf("unexpected error forcing cell: %v", err)
		}
		if value != 42 {
			t.Fatalf("expected 42, got %d", value)
		}
	}

	if calls != 1 {
		t.Fatalf("expected exactly one evaluation, got %d", calls)
	}
	if !cell.Forced() {
		t.Fatal("cell did not report forced after access")
	}
}

func TestLazyCachesErrors(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	cell := NewLazy(func() (string, error) {
		calls++
		return "", boom
	})

	for i := 0; i < 2; i++ {
		if _, err := cell.Force(); !errors.Is(err, boom) {
			t.Fatalf("expected cached error, got %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected exactly one evaluation, got %d", calls)
	}
}
