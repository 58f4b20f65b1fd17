package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"supplyledger/internal/blob/core"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, fmt.Errorf("fail") }

func TestStore_MissingHeadGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
}

func TestStore_AllBranches(t *testing.T) {
	s := New()
	ctx := context.Background()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	md := map[string]string{"namespace": "token"}
	info, err := s.Put(ctx, "snapshots/token/a.json", strings.NewReader("{}"), core.PutOptions{ContentType: "application/json", Metadata: md})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	md["namespace"] = "mutated"
	if info.Size != 2 || info.ETag == "" || info.LastModified.IsZero() {
		t.Fatalf("unexpected info: %+v", info)
	}
	if _, err := s.Put(ctx, "snapshots/token/a.json", strings.NewReader("{}"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists on duplicate put, got %v", err)
	}
	if _, err := s.Put(ctx, "snapshots/chain/b.json", strings.NewReader("[]"), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}

	got, rc, err := s.Get(ctx, "snapshots/token/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "{}" || got.Metadata["namespace"] != "token" || got.ContentType != "application/json" {
		t.Fatalf("unexpected blob %q %+v", body, got)
	}
	got.Metadata["namespace"] = "changed"
	head, err := s.Head(ctx, "snapshots/token/a.json")
	if err != nil || head.Metadata["namespace"] != "token" {
		t.Fatalf("metadata must be copied on read: %+v %v", head, err)
	}

	list, err := s.List(ctx, "snapshots/")
	if err != nil || len(list) != 2 || list[0].Key != "snapshots/chain/b.json" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	list, _ = s.List(ctx, "snapshots/token/")
	if len(list) != 1 {
		t.Fatalf("expected prefix filter, got %+v", list)
	}

	if _, err := s.PresignURL(ctx, "snapshots/token/a.json", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign, got %v", err)
	}
	if ok, err := s.Delete(ctx, "snapshots/token/a.json"); !ok || err != nil {
		t.Fatalf("delete existing: %v %v", ok, err)
	}
	if ok, _ := s.Delete(ctx, "snapshots/token/a.json"); ok {
		t.Fatalf("expected false deleting missing blob")
	}
}

func TestStore_PutReadError(t *testing.T) {
	s := New()
	if _, err := s.Put(context.Background(), "k", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
	if list, _ := s.List(context.Background(), ""); len(list) != 0 {
		t.Fatalf("failed put must not store anything")
	}
}
