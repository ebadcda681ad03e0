package kv_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pommai/toygate/pkg/kv"
)

// testStore runs the Store contract against one backend.
func testStore(t *testing.T, s kv.Store) {
	ctx := context.Background()

	t.Run("GetSetDelete", func(t *testing.T) {
		key := kv.Key{"conv", "0000000000001", "turn-a"}

		if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("get missing key: err = %v, want ErrNotFound", err)
		}

		if err := s.Set(ctx, key, []byte("what is a rainbow")); err != nil {
			t.Fatalf("set: %v", err)
		}
		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(got) != "what is a rainbow" {
			t.Errorf("value = %q", got)
		}

		// Overwrite replaces.
		if err := s.Set(ctx, key, []byte("updated")); err != nil {
			t.Fatal(err)
		}
		if got, _ := s.Get(ctx, key); string(got) != "updated" {
			t.Errorf("after overwrite = %q", got)
		}

		if err := s.Delete(ctx, key); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("get after delete: err = %v", err)
		}

		// Deleting again is fine.
		if err := s.Delete(ctx, key); err != nil {
			t.Fatalf("double delete: %v", err)
		}
	})

	t.Run("ListPrefixOrder", func(t *testing.T) {
		// Timestamp-ordered conversation keys plus an unrelated record
		// that the prefix scan must not pick up.
		for i := 3; i >= 1; i-- {
			key := kv.Key{"conv", fmt.Sprintf("%013d", i), "id"}
			if err := s.Set(ctx, key, []byte{byte(i)}); err != nil {
				t.Fatal(err)
			}
		}
		if err := s.Set(ctx, kv.Key{"convx", "other"}, []byte("no")); err != nil {
			t.Fatal(err)
		}

		var seen []byte
		for entry, err := range s.List(ctx, kv.Key{"conv"}) {
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if entry.Key[0] != "conv" {
				t.Errorf("prefix leak: %v", entry.Key)
			}
			seen = append(seen, entry.Value[0])
		}
		if string(seen) != "\x01\x02\x03" {
			t.Errorf("scan order = %v, want chronological", seen)
		}
	})

	t.Run("ListStopsEarly", func(t *testing.T) {
		n := 0
		for _, err := range s.List(ctx, kv.Key{"conv"}) {
			if err != nil {
				t.Fatal(err)
			}
			n++
			break
		}
		if n != 1 {
			t.Errorf("iterated %d entries after break", n)
		}
	})

	t.Run("Batches", func(t *testing.T) {
		entries := []kv.Entry{
			{Key: kv.Key{"unsynced", "a"}, Value: []byte("1")},
			{Key: kv.Key{"unsynced", "b"}, Value: []byte("2")},
			{Key: kv.Key{"unsynced", "c"}, Value: []byte("3")},
		}
		if err := s.BatchSet(ctx, entries); err != nil {
			t.Fatalf("batch set: %v", err)
		}

		count := func() int {
			n := 0
			for _, err := range s.List(ctx, kv.Key{"unsynced"}) {
				if err != nil {
					t.Fatal(err)
				}
				n++
			}
			return n
		}
		if got := count(); got != 3 {
			t.Fatalf("after batch set: %d entries", got)
		}

		if err := s.BatchDelete(ctx, []kv.Key{
			{"unsynced", "a"},
			{"unsynced", "c"},
		}); err != nil {
			t.Fatalf("batch delete: %v", err)
		}
		if got := count(); got != 1 {
			t.Errorf("after batch delete: %d entries", got)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	s := kv.NewMemory()
	t.Cleanup(func() { s.Close() })
	testStore(t, s)
}

func TestKeyString(t *testing.T) {
	k := kv.Key{"conv", "0000000000042", "id-1"}
	if k.String() != "conv:0000000000042:id-1" {
		t.Errorf("key string = %q", k.String())
	}
}
