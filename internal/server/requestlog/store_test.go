package requestlog

import (
	"fmt"
	"testing"
	"time"
)

func makeEntry(i int, status int) Entry {
	return Entry{
		ID:        fmt.Sprintf("req-%d", i),
		Timestamp: time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
		Method:    "GET",
		Path:      "/api/workflows",
		Status:    status,
	}
}

func TestStoreAddAndCount(t *testing.T) {
	store := NewStore(10)
	if store.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", store.Count())
	}

	for i := 0; i < 5; i++ {
		store.Add(makeEntry(i, 200))
	}
	if store.Count() != 5 {
		t.Errorf("Count() = %d, want 5", store.Count())
	}
}

func TestStoreRingBufferEviction(t *testing.T) {
	store := NewStore(3)
	for i := 0; i < 5; i++ {
		store.Add(makeEntry(i, 200))
	}

	if store.Count() != 3 {
		t.Fatalf("Count() = %d, want capacity 3", store.Count())
	}

	result := store.List(FilterOptions{})
	if len(result.Entries) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(result.Entries))
	}
	// Newest first, oldest two evicted.
	if result.Entries[0].ID != "req-4" || result.Entries[2].ID != "req-2" {
		t.Errorf("entries = [%s .. %s], want req-4 .. req-2",
			result.Entries[0].ID, result.Entries[2].ID)
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	store := NewStore(10)
	for i := 0; i < 4; i++ {
		store.Add(makeEntry(i, 200))
	}

	result := store.List(FilterOptions{})
	for i := 1; i < len(result.Entries); i++ {
		if result.Entries[i].Timestamp.After(result.Entries[i-1].Timestamp) {
			t.Fatal("entries not in reverse chronological order")
		}
	}
}

func TestStoreListFilters(t *testing.T) {
	store := NewStore(10)
	store.Add(makeEntry(0, 200))
	store.Add(makeEntry(1, 404))
	store.Add(makeEntry(2, 500))
	store.Add(Entry{ID: "post", Method: "POST", Path: "/api/workflows", Status: 201})

	result := store.List(FilterOptions{MinStatus: 400})
	if result.Total != 2 {
		t.Errorf("MinStatus filter Total = %d, want 2", result.Total)
	}

	result = store.List(FilterOptions{Status: 404})
	if result.Total != 1 || result.Entries[0].ID != "req-1" {
		t.Errorf("Status filter returned %+v, want only req-1", result.Entries)
	}

	result = store.List(FilterOptions{Method: "POST"})
	if result.Total != 1 || result.Entries[0].ID != "post" {
		t.Errorf("Method filter returned %+v, want only post", result.Entries)
	}

	result = store.List(FilterOptions{Since: time.Date(2026, 1, 1, 0, 0, 2, 0, time.UTC)})
	if result.Total != 1 {
		t.Errorf("Since filter Total = %d, want 1", result.Total)
	}
}

func TestStoreListPagination(t *testing.T) {
	store := NewStore(20)
	for i := 0; i < 10; i++ {
		store.Add(makeEntry(i, 200))
	}

	result := store.List(FilterOptions{Limit: 3, Offset: 2})
	if result.Total != 10 {
		t.Errorf("Total = %d, want 10", result.Total)
	}
	if len(result.Entries) != 3 {
		t.Fatalf("page size = %d, want 3", len(result.Entries))
	}
	if result.Entries[0].ID != "req-7" {
		t.Errorf("first entry = %s, want req-7", result.Entries[0].ID)
	}

	result = store.List(FilterOptions{Limit: 5, Offset: 100})
	if len(result.Entries) != 0 {
		t.Errorf("offset past end returned %d entries, want 0", len(result.Entries))
	}
}

func TestStoreClear(t *testing.T) {
	store := NewStore(10)
	store.Add(makeEntry(0, 200))
	store.Clear()

	if store.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", store.Count())
	}
	if result := store.List(FilterOptions{}); len(result.Entries) != 0 {
		t.Errorf("List() after Clear returned %d entries", len(result.Entries))
	}
}
