package handlers

import "testing"

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	page, meta := paginate(items, 3, 3)
	if len(page) != 1 || page[0] != 7 {
		t.Fatalf("unexpected last page %v", page)
	}
	if meta.TotalPages != 3 || meta.Total != 7 {
		t.Fatalf("unexpected meta %+v", meta)
	}

	page, _ = paginate(items, 4, 3)
	if len(page) != 0 {
		t.Fatalf("expected empty page past the end, got %v", page)
	}

	page, meta = paginate([]int{}, 1, 10)
	if len(page) != 0 || meta.TotalPages != 0 {
		t.Fatalf("unexpected empty result %v %+v", page, meta)
	}
}
