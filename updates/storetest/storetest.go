// Package storetest is a conformance suite for updates.Store implementations.
package storetest

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/ggoodman/inspector-proxy-go/updates"
)

// StoreFactory creates a fresh, empty store for a single test.
type StoreFactory func(t *testing.T) updates.Store

// RunStoreTests runs the complete store test suite against the provided factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("PutAndGet", func(t *testing.T) {
		testPutAndGet(t, factory)
	})
	t.Run("GetMissing", func(t *testing.T) {
		testGetMissing(t, factory)
	})
	t.Run("PutReplaces", func(t *testing.T) {
		testPutReplaces(t, factory)
	})
	t.Run("PutRejectsEmptyID", func(t *testing.T) {
		testPutRejectsEmptyID(t, factory)
	})
	t.Run("List", func(t *testing.T) {
		testList(t, factory)
	})
	t.Run("MarkAccessed", func(t *testing.T) {
		testMarkAccessed(t, factory)
	})
	t.Run("Delete", func(t *testing.T) {
		testDelete(t, factory)
	})
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sample(id string, offset int) updates.Update {
	return updates.Update{
		ID:             id,
		ScopeKey:       "https://u.example.com",
		RuntimeVersion: "1.0.0",
		CommitTime:     base.Add(time.Duration(offset) * time.Hour),
		LastAccessed:   base.Add(time.Duration(offset) * time.Minute),
	}
}

func closeStore(t *testing.T, s updates.Store) {
	t.Helper()
	if err := s.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}

func testPutAndGet(t *testing.T, factory StoreFactory) {
	s := factory(t)
	defer closeStore(t, s)
	ctx := context.Background()

	want := sample("u1", 1)
	if err := s.Put(ctx, want); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	got, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for stored update")
	}
	if got.ID != want.ID || got.ScopeKey != want.ScopeKey || got.RuntimeVersion != want.RuntimeVersion {
		t.Fatalf("Get() = %+v, want %+v", *got, want)
	}
	if !got.CommitTime.Equal(want.CommitTime) || !got.LastAccessed.Equal(want.LastAccessed) {
		t.Fatalf("timestamps differ: got %+v, want %+v", *got, want)
	}
}

func testGetMissing(t *testing.T, factory StoreFactory) {
	s := factory(t)
	defer closeStore(t, s)

	got, err := s.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", *got)
	}
}

func testPutReplaces(t *testing.T, factory StoreFactory) {
	s := factory(t)
	defer closeStore(t, s)
	ctx := context.Background()

	u := sample("u1", 1)
	if err := s.Put(ctx, u); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	u.RuntimeVersion = "2.0.0"
	if err := s.Put(ctx, u); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(all) != 1 || all[0].RuntimeVersion != "2.0.0" {
		t.Fatalf("unexpected list after replace: %+v", all)
	}
}

func testPutRejectsEmptyID(t *testing.T, factory StoreFactory) {
	s := factory(t)
	defer closeStore(t, s)

	err := s.Put(context.Background(), updates.Update{})
	if !errors.Is(err, updates.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func testList(t *testing.T, factory StoreFactory) {
	s := factory(t)
	defer closeStore(t, s)
	ctx := context.Background()

	for i, id := range []string{"c", "a", "b"} {
		if err := s.Put(ctx, sample(id, i)); err != nil {
			t.Fatalf("Put(%s) failed: %v", id, err)
		}
	}
	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	ids := make([]string, 0, len(all))
	for _, u := range all {
		ids = append(ids, u.ID)
	}
	sort.Strings(ids)
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func testMarkAccessed(t *testing.T, factory StoreFactory) {
	s := factory(t)
	defer closeStore(t, s)
	ctx := context.Background()

	if err := s.Put(ctx, sample("u1", 1)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	at := base.Add(72 * time.Hour)
	if err := s.MarkAccessed(ctx, "u1", at); err != nil {
		t.Fatalf("MarkAccessed() failed: %v", err)
	}
	got, err := s.Get(ctx, "u1")
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if !got.LastAccessed.Equal(at) {
		t.Fatalf("LastAccessed = %v, want %v", got.LastAccessed, at)
	}

	if err := s.MarkAccessed(ctx, "missing", at); !errors.Is(err, updates.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testDelete(t *testing.T, factory StoreFactory) {
	s := factory(t)
	defer closeStore(t, s)
	ctx := context.Background()

	if err := s.Put(ctx, sample("u1", 1)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := s.Put(ctx, sample("u2", 2)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := s.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if got, _ := s.Get(ctx, "u1"); got != nil {
		t.Fatal("deleted update still present")
	}
	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(all) != 1 || all[0].ID != "u2" {
		t.Fatalf("unexpected list after delete: %+v", all)
	}
	if err := s.Delete(ctx, "u1"); !errors.Is(err, updates.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
