package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestMemory_HashSetGet(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	if _, ok, err := m.HashGet(ctx, "products", "p1"); err != nil || ok {
		t.Fatalf("expected miss on empty hash, got ok=%v err=%v", ok, err)
	}

	if err := m.HashSet(ctx, "products", "p1", "Maps"); err != nil {
		t.Fatalf("HashSet failed: %v", err)
	}

	val, ok, err := m.HashGet(ctx, "products", "p1")
	if err != nil {
		t.Fatalf("HashGet failed: %v", err)
	}
	if !ok || val != "Maps" {
		t.Errorf("expected (Maps, true), got (%s, %v)", val, ok)
	}

	// Upsert overwrites.
	if err := m.HashSet(ctx, "products", "p1", "Geo"); err != nil {
		t.Fatalf("HashSet failed: %v", err)
	}
	val, _, _ = m.HashGet(ctx, "products", "p1")
	if val != "Geo" {
		t.Errorf("expected overwrite to Geo, got %s", val)
	}
}

func TestMemory_SetAddPick(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	if _, ok, err := m.SetPick(ctx, "subscriptions:u1"); err != nil || ok {
		t.Fatalf("expected miss on empty set, got ok=%v err=%v", ok, err)
	}

	members := map[string]bool{"p1": true, "p2": true, "p3": true}
	for member := range members {
		if err := m.SetAdd(ctx, "subscriptions:u1", member); err != nil {
			t.Fatalf("SetAdd failed: %v", err)
		}
	}
	// Duplicate add is a no-op.
	if err := m.SetAdd(ctx, "subscriptions:u1", "p1"); err != nil {
		t.Fatalf("SetAdd failed: %v", err)
	}

	for i := 0; i < 20; i++ {
		member, ok, err := m.SetPick(ctx, "subscriptions:u1")
		if err != nil {
			t.Fatalf("SetPick failed: %v", err)
		}
		if !ok || !members[member] {
			t.Errorf("picked unexpected member %q (ok=%v)", member, ok)
		}
	}
}

func TestMemory_Incr(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := m.Incr(ctx, "usage:u1:geocode")
		if err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
		if got != want {
			t.Errorf("expected count %d, got %d", want, got)
		}
	}

	val, ok, err := m.GetInt(ctx, "usage:u1:geocode")
	if err != nil || !ok || val != 5 {
		t.Errorf("expected (5, true), got (%d, %v, %v)", val, ok, err)
	}
}

func TestMemory_IncrBelow(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, allowed, err := m.IncrBelow(ctx, "usage:u1:a", 3)
		if err != nil {
			t.Fatalf("IncrBelow failed: %v", err)
		}
		if !allowed || count != int64(i) {
			t.Errorf("call %d: expected (count=%d, allowed), got (%d, %v)", i, i, count, allowed)
		}
	}

	count, allowed, err := m.IncrBelow(ctx, "usage:u1:a", 3)
	if err != nil {
		t.Fatalf("IncrBelow failed: %v", err)
	}
	if allowed || count != 3 {
		t.Errorf("expected (3, denied) at ceiling, got (%d, %v)", count, allowed)
	}
}

func TestMemory_GetIntMissing(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	val, ok, err := m.GetInt(context.Background(), "quota:nope")
	if err != nil {
		t.Fatalf("GetInt failed: %v", err)
	}
	if ok || val != 0 {
		t.Errorf("expected miss, got (%d, %v)", val, ok)
	}
}

func TestMemory_ConcurrentIncr(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	const goroutines = 50
	const callsEach = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsEach; j++ {
				if _, err := m.Incr(ctx, "usage:u1:geocode"); err != nil {
					t.Errorf("Incr failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	val, _, err := m.GetInt(ctx, "usage:u1:geocode")
	if err != nil {
		t.Fatalf("GetInt failed: %v", err)
	}
	if val != goroutines*callsEach {
		t.Errorf("expected %d, got %d (lost updates)", goroutines*callsEach, val)
	}
}

func TestMemory_ConcurrentIncrBelow(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	const goroutines = 50
	const ceiling = 30

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := m.IncrBelow(ctx, "usage:u1:a", ceiling); err != nil {
				t.Errorf("IncrBelow failed: %v", err)
			}
		}()
	}
	wg.Wait()

	val, _, err := m.GetInt(ctx, "usage:u1:a")
	if err != nil {
		t.Fatalf("GetInt failed: %v", err)
	}
	if val != ceiling {
		t.Errorf("expected counter capped at %d, got %d", ceiling, val)
	}
}

func TestMemory_IndependentKeys(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("usage:u%d:api", i)
		for j := 0; j <= i; j++ {
			if _, err := m.Incr(ctx, key); err != nil {
				t.Fatalf("Incr failed: %v", err)
			}
		}
	}

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("usage:u%d:api", i)
		val, _, _ := m.GetInt(ctx, key)
		if val != int64(i+1) {
			t.Errorf("key %s: expected %d, got %d", key, i+1, val)
		}
	}
}
