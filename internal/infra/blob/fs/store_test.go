package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"supplyledger/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestStore_PutGetHeadListDelete(t *testing.T) {
	s := newTempStore(t)
	ctx := context.Background()
	if s.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver %s", s.Driver())
	}

	info, err := s.Put(ctx, "snapshots/token/001.json", strings.NewReader(`{"a":1}`), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"namespace": "token"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 7 || len(info.ETag) != 64 || info.URL != "http://local.blob/snapshots/token/001.json" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.LastModified.Location().String() != "UTC" {
		t.Fatalf("expected UTC timestamps, got %s", info.LastModified.Location())
	}

	got, rc, err := s.Get(ctx, "snapshots/token/001.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"a":1}` || got.ETag != info.ETag || got.Metadata["namespace"] != "token" {
		t.Fatalf("unexpected get %q %+v", body, got)
	}

	head, err := s.Head(ctx, "snapshots/token/001.json")
	if err != nil || head.ContentType != "application/json" {
		t.Fatalf("unexpected head %+v %v", head, err)
	}

	if _, err := s.Put(ctx, "snapshots/chain/001.json", strings.NewReader(`{}`), core.PutOptions{}); err != nil {
		t.Fatalf("second put: %v", err)
	}
	all, err := s.List(ctx, "")
	if err != nil || len(all) != 2 || all[0].Key != "snapshots/chain/001.json" {
		t.Fatalf("unexpected list %+v %v", all, err)
	}
	filtered, err := s.List(ctx, "snapshots/token/")
	if err != nil || len(filtered) != 1 || filtered[0].Key != "snapshots/token/001.json" {
		t.Fatalf("unexpected filtered list %+v %v", filtered, err)
	}

	if ok, err := s.Delete(ctx, "snapshots/token/001.json"); !ok || err != nil {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, "snapshots/token/001.json"); ok || err != nil {
		t.Fatalf("second delete should report missing: %v %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "snapshots", "token", "001.json.meta")); !os.IsNotExist(err) {
		t.Fatalf("expected sidecar removed, got %v", err)
	}
	if _, _, err := s.Get(ctx, "snapshots/token/001.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := s.Head(ctx, "snapshots/token/001.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
}

func TestStore_PutDuplicateAndErrorBranches(t *testing.T) {
	s := newTempStore(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, "k.json", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, "k.json", strings.NewReader("y"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.Put(ctx, "broken.json", errorReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected reader error")
	}
	if _, err := s.Head(ctx, "broken.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("failed put must leave nothing behind, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.Put(cancelled, "late.json", strings.NewReader("z"), core.PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestStore_PathTraversal(t *testing.T) {
	s := newTempStore(t)
	for _, key := range []string{"", "  ", "../escape", "/abs", "a/../b", "x.meta"} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
	if _, err := s.PresignURL(context.Background(), "../x", core.SignedURLOptions{}); err == nil {
		t.Fatalf("expected presign to validate key")
	}
}

func TestStore_MetadataSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	first, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := first.Put(context.Background(), "a/b.json", strings.NewReader("{}"), core.PutOptions{Metadata: map[string]string{"items": "3"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	second, err := New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	info, err := second.Head(context.Background(), "a/b.json")
	if err != nil || info.Metadata["items"] != "3" {
		t.Fatalf("expected metadata after reopen, got %+v %v", info, err)
	}
}

func TestStore_Presign(t *testing.T) {
	s := newTempStore(t)
	url, err := s.PresignURL(context.Background(), "a.json", core.SignedURLOptions{Method: "get"})
	if err != nil || url != "http://local.blob/a.json" {
		t.Fatalf("unexpected presign %q %v", url, err)
	}
	if _, err := s.PresignURL(context.Background(), "a.json", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported for PUT, got %v", err)
	}
}

func TestListMetaCorrupt(t *testing.T) {
	s := newTempStore(t)
	data := filepath.Join(s.Root(), "bad.txt")
	if err := os.WriteFile(data, []byte("data"), 0o644); err != nil {
		t.Fatalf("write data: %v", err)
	}
	if err := os.WriteFile(data+metaSuffix, []byte("{"), 0o644); err != nil {
		t.Fatalf("write meta: %v", err)
	}
	if _, err := s.List(context.Background(), ""); err == nil {
		t.Fatalf("expected list error on corrupt meta")
	}
	if _, err := s.List(context.Background(), "other/"); err != nil {
		t.Fatalf("corrupt sidecar outside the prefix must be skipped: %v", err)
	}
}

func TestWriteJSONMarshalError(t *testing.T) {
	old := jsonMarshal
	jsonMarshal = func(any) ([]byte, error) { return nil, errors.New("marsh") }
	defer func() { jsonMarshal = old }()

	s := newTempStore(t)
	if _, err := s.Put(context.Background(), "m.json", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("expected marshal error")
	}
	if _, err := s.Head(context.Background(), "m.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected no data file after meta failure, got %v", err)
	}
}

func TestNewRejectsFileRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(filepath.Join(file, "sub")); err == nil {
		t.Fatalf("expected error when root is beneath a file")
	}
}
