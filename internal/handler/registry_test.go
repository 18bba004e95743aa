package handler

import (
	"errors"
	"sync"
	"testing"
)

func TestInstallReturnsKey(t *testing.T) {
	r := New[int]("test", nil)

	k, err := r.Install(func(int) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.IsZero() {
		t.Error("expected non-zero key")
	}
	if r.Len() != 1 {
		t.Errorf("Len: got %d, want 1", r.Len())
	}
}

func TestInstallNilCallback(t *testing.T) {
	r := New[int]("test", nil)

	k, err := r.Install(nil)
	if !errors.Is(err, ErrNilHandler) {
		t.Errorf("expected ErrNilHandler, got %v", err)
	}
	if !k.IsZero() {
		t.Errorf("expected zero key, got %d", k)
	}
	if r.Len() != 0 {
		t.Errorf("Len: got %d, want 0", r.Len())
	}
}

func TestKeysAreUnique(t *testing.T) {
	a := New[int]("a", nil)
	b := New[bool]("b", nil)

	seen := map[Key]bool{}
	for i := 0; i < 10; i++ {
		k1, _ := a.Install(func(int) {})
		k2, _ := b.Install(func(bool) {})
		if seen[k1] || seen[k2] {
			t.Fatalf("duplicate key issued: %d / %d", k1, k2)
		}
		seen[k1] = true
		seen[k2] = true
	}
}

func TestRaiseInstallationOrder(t *testing.T) {
	r := New[string]("test", nil)

	var got []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		if _, err := r.Install(func(p string) { got = append(got, name+":"+p) }); err != nil {
			t.Fatalf("install %s: %v", name, err)
		}
	}

	r.Raise("x")

	want := []string{"first:x", "second:x", "third:x"}
	if len(got) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRaisePanicDoesNotStopOthers(t *testing.T) {
	r := New[int]("test", nil)

	var before, after int
	r.Install(func(v int) { before = v })
	r.Install(func(int) { panic("boom") })
	r.Install(func(v int) { after = v })

	r.Raise(7)

	if before != 7 {
		t.Errorf("handler before panic: got %d, want 7", before)
	}
	if after != 7 {
		t.Errorf("handler after panic: got %d, want 7", after)
	}
}

func TestInstallDuringRaiseIsBusy(t *testing.T) {
	r := New[int]("test", nil)

	var delivered int
	var nestedErr error
	r.Install(func(v int) { delivered += v })
	r.Install(func(int) {
		_, nestedErr = r.Install(func(int) {})
	})

	r.Raise(1)

	if !errors.Is(nestedErr, ErrBusy) {
		t.Fatalf("expected ErrBusy from nested install, got %v", nestedErr)
	}
	if r.Len() != 2 {
		t.Errorf("Len: got %d, want 2 (busy install must not register)", r.Len())
	}

	// Previously installed handlers still receive later raises.
	r.Raise(2)
	if delivered != 3 {
		t.Errorf("delivered: got %d, want 3", delivered)
	}
}

func TestRemove(t *testing.T) {
	r := New[int]("test", nil)

	var calls []string
	k1, _ := r.Install(func(int) { calls = append(calls, "a") })
	k2, _ := r.Install(func(int) { calls = append(calls, "b") })
	r.Install(func(int) { calls = append(calls, "c") })

	if !r.Remove(k2) {
		t.Fatal("expected Remove to find k2")
	}
	if r.Remove(k2) {
		t.Error("second Remove of k2 should report false")
	}
	if r.Remove(0) {
		t.Error("Remove of zero key should report false")
	}

	r.Raise(0)

	if len(calls) != 2 || calls[0] != "a" || calls[1] != "c" {
		t.Errorf("calls after remove: got %v, want [a c]", calls)
	}

	// k1 is still valid after the list was mutated.
	if !r.Remove(k1) {
		t.Error("expected Remove to find k1 after earlier removal")
	}
}

func TestConcurrentInstallAndRaise(t *testing.T) {
	r := New[int]("test", nil)

	var mu sync.Mutex
	total := 0
	r.Install(func(v int) {
		mu.Lock()
		total += v
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Raise(1)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				k, err := r.Install(func(int) {})
				if err == nil {
					r.Remove(k)
				} else if !errors.Is(err, ErrBusy) {
					t.Errorf("unexpected install error: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if total != 800 {
		t.Errorf("total: got %d, want 800", total)
	}
}
