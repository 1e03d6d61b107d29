package fedi

import "testing"

func TestParsePage(t *testing.T) {
	cases := []struct {
		raw      string
		wantPage int
		wantOK   bool
	}{
		{"", 0, false},
		{"1", 1, true},
		{"3", 3, true},
		{"0", 0, false},
		{"-1", 0, false},
		{"abc", 0, false},
		{"1.5", 0, false},
	}

	for _, c := range cases {
		page, ok := ParsePage(c.raw)
		if page != c.wantPage || ok != c.wantOK {
			t.Errorf("ParsePage(%q) = (%d, %v), want (%d, %v)", c.raw, page, ok, c.wantPage, c.wantOK)
		}
	}
}

func TestPageCount(t *testing.T) {
	cases := []struct {
		total int
		size  int
		want  int
	}{
		{0, 12, 0},
		{1, 12, 1},
		{12, 12, 1},
		{13, 12, 2},
		{30, 12, 3},
	}

	for _, c := range cases {
		if got := pageCount(c.total, c.size); got != c.want {
			t.Errorf("pageCount(%d, %d) = %d, want %d", c.total, c.size, got, c.want)
		}
	}
}

func TestBuildOrderedCollection_Empty(t *testing.T) {
	doc := buildOrderedCollection("https://example.com/u/alice/followers", 0, Visibility{DiscloseCount: true, DiscloseItems: true})

	if doc.TotalItems != 0 {
		t.Errorf("totalItems = %d, want 0", doc.TotalItems)
	}
	if doc.First != "" || doc.Last != "" {
		t.Errorf("empty collection must not link pages, got first=%q last=%q", doc.First, doc.Last)
	}
}

func TestBuildOrderedCollection_SinglePage(t *testing.T) {
	doc := buildOrderedCollection("https://example.com/u/alice/followers", 2, Visibility{DiscloseCount: true, DiscloseItems: true})

	if doc.TotalItems != 2 {
		t.Errorf("totalItems = %d, want 2", doc.TotalItems)
	}
	if doc.First != "https://example.com/u/alice/followers?page=1" {
		t.Errorf("first = %q", doc.First)
	}
	if doc.Last != "" {
		t.Errorf("single page collection must not link last, got %q", doc.Last)
	}
}

func TestBuildOrderedCollection_MultiPage(t *testing.T) {
	doc := buildOrderedCollection("https://example.com/u/alice/followers", 30, Visibility{DiscloseCount: true, DiscloseItems: true})

	if doc.First != "https://example.com/u/alice/followers?page=1" {
		t.Errorf("first = %q", doc.First)
	}
	if doc.Last != "https://example.com/u/alice/followers?page=3" {
		t.Errorf("last = %q", doc.Last)
	}
}

func TestBuildOrderedCollection_Hidden(t *testing.T) {
	doc := buildOrderedCollection("https://example.com/u/alice/followers", 30, Visibility{DiscloseCount: true, DiscloseItems: false})

	if doc.TotalItems != 30 {
		t.Errorf("totalItems = %d, want 30 even when items are hidden", doc.TotalItems)
	}
	if doc.First != "" || doc.Last != "" {
		t.Errorf("hidden collection must not link pages, got first=%q last=%q", doc.First, doc.Last)
	}
}

func TestBuildOrderedCollectionPage(t *testing.T) {
	items := []string{
		"https://example.com/u/bob",
		"https://example.com/u/chris",
	}
	doc := buildOrderedCollectionPage("https://example.com/u/alice/followers", 1, 2, items, Visibility{DiscloseCount: true, DiscloseItems: true})

	if doc.ID != "https://example.com/u/alice/followers?page=1" {
		t.Errorf("id = %q", doc.ID)
	}
	if doc.PartOf != "https://example.com/u/alice/followers" {
		t.Errorf("partOf = %q", doc.PartOf)
	}
	if doc.TotalItems != 2 {
		t.Errorf("totalItems = %d, want 2", doc.TotalItems)
	}
	if len(doc.OrderedItems) != 2 || doc.OrderedItems[0] != items[0] || doc.OrderedItems[1] != items[1] {
		t.Errorf("orderedItems = %v, want %v in creation order", doc.OrderedItems, items)
	}
	if doc.Prev != "" || doc.Next != "" {
		t.Errorf("single page must not link neighbours, got prev=%q next=%q", doc.Prev, doc.Next)
	}
}

func TestBuildOrderedCollectionPage_MiddlePage(t *testing.T) {
	doc := buildOrderedCollectionPage("https://example.com/u/alice/followers", 2, 30, []string{"x"}, Visibility{DiscloseCount: true, DiscloseItems: true})

	if doc.Prev != "https://example.com/u/alice/followers?page=1" {
		t.Errorf("prev = %q", doc.Prev)
	}
	if doc.Next != "https://example.com/u/alice/followers?page=3" {
		t.Errorf("next = %q", doc.Next)
	}
}

func TestBuildOrderedCollectionPage_OutOfRange(t *testing.T) {
	doc := buildOrderedCollectionPage("https://example.com/u/alice/followers", 9, 2, nil, Visibility{DiscloseCount: true, DiscloseItems: true})

	if len(doc.OrderedItems) != 0 {
		t.Errorf("out of range page must be empty, got %v", doc.OrderedItems)
	}
	if doc.OrderedItems == nil {
		t.Error("orderedItems must be an empty sequence, not absent")
	}
	if doc.TotalItems != 2 {
		t.Errorf("totalItems = %d, want 2", doc.TotalItems)
	}
}

func TestBuildOrderedCollectionPage_Hidden(t *testing.T) {
	doc := buildOrderedCollectionPage("https://example.com/u/alice/followers", 1, 2, []string{"leak"}, Visibility{DiscloseCount: true, DiscloseItems: false})

	if len(doc.OrderedItems) != 0 {
		t.Errorf("hidden collection page must not list items, got %v", doc.OrderedItems)
	}
	if doc.TotalItems != 2 {
		t.Errorf("totalItems = %d, want 2", doc.TotalItems)
	}
	if doc.Prev != "" || doc.Next != "" {
		t.Errorf("hidden collection page must not link neighbours, got prev=%q next=%q", doc.Prev, doc.Next)
	}
}
