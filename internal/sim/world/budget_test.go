package world

import "testing"

func TestAdmit_capsAndPreservesOrder(t *testing.T) {
	in := []int{1, 2, 3, 4, 5}

	admitted, deferred := admit(in, 3)
	if len(admitted) != 3 || len(deferred) != 2 {
		t.Fatalf("admit cap 3: got %d admitted, %d deferred", len(admitted), len(deferred))
	}
	for i, v := range []int{1, 2, 3} {
		if admitted[i] != v {
			t.Fatalf("admitted[%d] = %d, want %d", i, admitted[i], v)
		}
	}
	for i, v := range []int{4, 5} {
		if deferred[i] != v {
			t.Fatalf("deferred[%d] = %d, want %d", i, deferred[i], v)
		}
	}
}

func TestAdmit_edges(t *testing.T) {
	if admitted, deferred := admit([]int{1, 2}, 10); len(admitted) != 2 || deferred != nil {
		t.Fatalf("cap above len: admitted=%v deferred=%v", admitted, deferred)
	}
	if admitted, deferred := admit([]int{1, 2}, 0); len(admitted) != 0 || len(deferred) != 2 {
		t.Fatalf("cap zero: admitted=%v deferred=%v", admitted, deferred)
	}
	if admitted, deferred := admit([]int{1, 2}, -1); len(admitted) != 0 || len(deferred) != 2 {
		t.Fatalf("negative cap: admitted=%v deferred=%v", admitted, deferred)
	}
	if admitted, _ := admit[int](nil, 4); len(admitted) != 0 {
		t.Fatalf("empty candidates: admitted=%v", admitted)
	}
}
