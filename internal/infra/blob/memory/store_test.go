package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"stockpile/internal/blob/core"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	md := map[string]string{"k": "v"}
	info, err := s.Put(ctx, "a/b.txt", bytes.NewBufferString("hello"), core.PutOptions{ContentType: "text/plain", Metadata: md})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	md["k"] = "mutated"
	if info.Size != 5 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "a/b.txt", bytes.NewBufferString("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	head, err := s.Head(ctx, "a/b.txt")
	if err != nil || head.Metadata["k"] != "v" {
		t.Fatalf("head = %+v, %v", head, err)
	}
	_, rc, err := s.Get(ctx, "a/b.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "hello" {
		t.Fatalf("unexpected body %q", body)
	}
	_, _ = s.Put(ctx, "c.txt", bytes.NewBufferString("c"), core.PutOptions{})
	if list, _ := s.List(ctx, "a/"); len(list) != 1 || list[0].Key != "a/b.txt" {
		t.Fatalf("unexpected list %+v", list)
	}
	if list, _ := s.List(ctx, ""); len(list) != 2 {
		t.Fatalf("expected 2 blobs, got %+v", list)
	}
	if ok, _ := s.Delete(ctx, "a/b.txt"); !ok {
		t.Fatalf("expected delete")
	}
	if ok, _ := s.Delete(ctx, "a/b.txt"); ok {
		t.Fatalf("second delete reported removal")
	}
	if _, err := s.Head(ctx, "a/b.txt"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "a/b.txt"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Put(ctx, "", bytes.NewBufferString("x"), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
}
