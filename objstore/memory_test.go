package objstore

import (
	"context"
	"errors"
	"io/fs"
	"reflect"
	"testing"
)

func TestMemoryPutGet(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	if _, err := b.Get(ctx, "a/1.tif"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing object: got %v, want fs.ErrNotExist", err)
	}

	if err := b.Put(ctx, "a/1.tif", []byte("one")); err != nil {
		t.Fatal(err)
	}
	body, err := b.Get(ctx, "a/1.tif")
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "one" {
		t.Fatalf("got %q", body)
	}

	// last writer wins
	if err := b.Put(ctx, "a/1.tif", []byte("two")); err != nil {
		t.Fatal(err)
	}
	body, _ = b.Get(ctx, "a/1.tif")
	if string(body) != "two" {
		t.Fatalf("after overwrite: got %q", body)
	}
	if b.Len() != 1 {
		t.Fatalf("Len: got %d", b.Len())
	}
}

func TestMemoryStat(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	b.Put(ctx, "prefix/5/1/32.tif", []byte("x"))

	ok, err := b.Stat(ctx, "prefix/5/1/32.tif")
	if err != nil || !ok {
		t.Fatalf("existing key: ok=%v err=%v", ok, err)
	}
	// exact-match lookup: a key that is a prefix of an existing key does
	// not exist
	ok, err = b.Stat(ctx, "prefix/5/1/3")
	if err != nil || ok {
		t.Fatalf("prefix of a key: ok=%v err=%v", ok, err)
	}
}

func TestMemoryList(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	b.Put(ctx, "run/5/1/1.tif", nil)
	b.Put(ctx, "run/5/1/2.tif", nil)
	b.Put(ctx, "run/6/0/0.tif", nil)

	keys, err := b.List(ctx, "run/5")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"run/5/1/1.tif", "run/5/1/2.tif"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
}

func TestOpenScheme(t *testing.T) {
	if _, err := Open(context.Background(), "ftp", "bucket"); err == nil {
		t.Fatal("unknown scheme accepted")
	}
	b, err := Open(context.Background(), "mem", "bucket")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(*Memory); !ok {
		t.Fatalf("got %T", b)
	}
}
