package memtier

import "testing"

func TestFIFOOrder(t *testing.T) {
	q := New[int](3)
	for _, v := range []int{1, 2, 3} {
		if !q.TryPush(v) {
			t.Fatalf("TryPush(%d) = false, want true", v)
		}
	}
	if q.TryPush(4) {
		t.Fatalf("TryPush(4) on full queue = true, want false")
	}

	for _, want := range []int{1, 2, 3} {
		got, ok := q.TryPop()
		if !ok || got != want {
			t.Fatalf("TryPop() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Fatalf("TryPop() on empty queue = true, want false")
	}
}

func TestWrapAround(t *testing.T) {
	q := New[int](2)
	q.TryPush(1)
	q.TryPush(2)
	if v, _ := q.TryPop(); v != 1 {
		t.Fatalf("TryPop() = %d, want 1", v)
	}
	q.TryPush(3)
	if v, _ := q.TryPop(); v != 2 {
		t.Fatalf("TryPop() = %d, want 2", v)
	}
	if v, _ := q.TryPop(); v != 3 {
		t.Fatalf("TryPop() = %d, want 3", v)
	}
}

func TestLenCapHasRoom(t *testing.T) {
	q := New[string](4)
	if q.Cap() != 4 {
		t.Fatalf("Cap() = %d, want 4", q.Cap())
	}
	if !q.HasRoom() {
		t.Fatalf("HasRoom() = false on empty queue")
	}
	q.TryPush("a")
	q.TryPush("b")
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
}

func TestZeroCapacityClampedToOne(t *testing.T) {
	q := New[int](0)
	if q.Cap() != 1 {
		t.Fatalf("Cap() = %d, want 1", q.Cap())
	}
}
