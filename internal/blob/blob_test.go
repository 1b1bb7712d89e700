package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// storeUnderTest runs the shared contract against each local driver.
func storeUnderTest(t *testing.T, name string) Store {
	t.Helper()
	switch name {
	case "memory":
		return NewMemory()
	case "fs":
		s, err := NewFilesystem(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		return s
	default:
		t.Fatalf("unknown driver %s", name)
		return nil
	}
}

func TestStoreContract(t *testing.T) {
	for _, driver := range []string{"memory", "fs"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			store := storeUnderTest(t, driver)

			info, err := store.Put(ctx, "exports/a.csv", strings.NewReader("x,y\n1,2\n"), PutOptions{
				ContentType: "text/csv",
				Metadata:    map[string]string{"dataset": "ledger"},
			})
			if err != nil {
				t.Fatal(err)
			}
			if info.Key != "exports/a.csv" || info.Size != 8 {
				t.Fatalf("got %+v", info)
			}

			// Create-only: a second put on the same key must fail.
			if _, err := store.Put(ctx, "exports/a.csv", strings.NewReader("other"), PutOptions{}); err == nil {
				t.Fatal("second put should fail")
			}

			got, rc, err := store.Get(ctx, "exports/a.csv")
			if err != nil {
				t.Fatal(err)
			}
			body, err := io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				t.Fatal(err)
			}
			if string(body) != "x,y\n1,2\n" {
				t.Fatalf("body %q", body)
			}
			if got.ContentType != "text/csv" || got.Metadata["dataset"] != "ledger" {
				t.Fatalf("metadata lost: %+v", got)
			}

			head, err := store.Head(ctx, "exports/a.csv")
			if err != nil || head.Size != 8 {
				t.Fatalf("head: %+v err=%v", head, err)
			}

			if _, err := store.Put(ctx, "exports/b.csv", strings.NewReader("b"), PutOptions{}); err != nil {
				t.Fatal(err)
			}
			if _, err := store.Put(ctx, "other/c.csv", strings.NewReader("c"), PutOptions{}); err != nil {
				t.Fatal(err)
			}
			infos, err := store.List(ctx, "exports/")
			if err != nil {
				t.Fatal(err)
			}
			if len(infos) != 2 || infos[0].Key != "exports/a.csv" || infos[1].Key != "exports/b.csv" {
				t.Fatalf("list: %+v", infos)
			}

			existed, err := store.Delete(ctx, "exports/a.csv")
			if err != nil || !existed {
				t.Fatalf("delete: existed=%v err=%v", existed, err)
			}
			if _, err := store.Head(ctx, "exports/a.csv"); err == nil {
				t.Fatal("head after delete should fail")
			}
			existed, err = store.Delete(ctx, "exports/a.csv")
			if err != nil || existed {
				t.Fatalf("second delete: existed=%v err=%v", existed, err)
			}

			if _, err := store.PresignURL(ctx, "exports/b.csv", SignedURLOptions{}); !errors.Is(err, ErrUnsupported) {
				t.Fatalf("presign should be unsupported locally, got %v", err)
			}
		})
	}
}

func TestFilesystemRejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "   ", "/abs/path", "../escape", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Errorf("key %q should be rejected", key)
		}
	}
}

func TestFilesystemETagIsContentHash(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a, err := store.Put(ctx, "one", strings.NewReader("same"), PutOptions{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.Put(ctx, "two", strings.NewReader("same"), PutOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if a.ETag == "" || a.ETag != b.ETag {
		t.Fatalf("etags %q vs %q", a.ETag, b.ETag)
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	if _, err := store.Put(ctx, "k", strings.NewReader("abc"), PutOptions{}); err != nil {
		t.Fatal(err)
	}
	_, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	first, _ := io.ReadAll(rc)
	_ = rc.Close()
	first[0] = 'z'

	_, rc, err = store.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	second, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(second) != "abc" {
		t.Fatalf("stored data mutated: %q", second)
	}
}
