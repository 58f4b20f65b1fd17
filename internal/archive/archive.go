// Package archive stores point-in-time snapshots of a component's state in
// blob storage under snapshots/<namespace>/<timestamp>.json.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"supplyledger/internal/blob"
	"supplyledger/internal/infra/persistence/memory"
	"supplyledger/pkg/domain"
)

const (
	rootPrefix  = "snapshots/"
	contentType = "application/json"
	// keyLayout is RFC 3339 with a fixed nine digit fraction so keys sort
	// lexically in time order.
	keyLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Entry describes one stored archive.
type Entry struct {
	Key       string    `json:"key"`
	Namespace string    `json:"namespace"`
	TakenAt   time.Time `json:"taken_at"`
	Size      int64     `json:"size_bytes"`
	Accounts  int       `json:"accounts"`
	Items     int       `json:"items"`
	URL       string    `json:"url,omitempty"`
}

// Archiver writes and reads snapshots through a blob.Store.
type Archiver struct {
	store blob.Store
	now   func() time.Time
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithClock sets the clock used to stamp archive keys.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) {
		if now != nil {
			a.now = now
		}
	}
}

// New returns an Archiver over store.
func New(store blob.Store, opts ...Option) *Archiver {
	a := &Archiver{store: store, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func prefixFor(namespace string) string { return rootPrefix + namespace + "/" }

func validNamespace(namespace string) error {
	if strings.TrimSpace(namespace) == "" || strings.ContainsAny(namespace, "/\\") || strings.Contains(namespace, "..") {
		return fmt.Errorf("%w: invalid archive namespace %q", domain.ErrInvalidArgument, namespace)
	}
	return nil
}

// Save writes snapshot as a new archive of namespace.
func (a *Archiver) Save(ctx context.Context, namespace string, snapshot memory.Snapshot) (Entry, error) {
	if err := validNamespace(namespace); err != nil {
		return Entry{}, err
	}
	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return Entry{}, fmt.Errorf("encode snapshot: %w", err)
	}
	taken := a.now().UTC()
	key := prefixFor(namespace) + taken.Format(keyLayout) + ".json"
	info, err := a.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"namespace": namespace,
			"accounts":  strconv.Itoa(len(snapshot.Accounts)),
			"items":     strconv.Itoa(len(snapshot.Items)),
		},
	})
	if err != nil {
		return Entry{}, fmt.Errorf("archive %s: %w", namespace, err)
	}
	return Entry{
		Key:       info.Key,
		Namespace: namespace,
		TakenAt:   taken,
		Size:      info.Size,
		Accounts:  len(snapshot.Accounts),
		Items:     len(snapshot.Items),
		URL:       info.URL,
	}, nil
}

// List returns the archives of namespace, oldest first. Account and item
// counts are filled only when the driver lists metadata.
func (a *Archiver) List(ctx context.Context, namespace string) ([]Entry, error) {
	if err := validNamespace(namespace); err != nil {
		return nil, err
	}
	infos, err := a.store.List(ctx, prefixFor(namespace))
	if err != nil {
		return nil, fmt.Errorf("list archives %s: %w", namespace, err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entry, ok := entryFromInfo(namespace, info)
		if ok {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].TakenAt.Before(entries[j].TakenAt) })
	return entries, nil
}

// Latest loads the newest archive of namespace.
func (a *Archiver) Latest(ctx context.Context, namespace string) (memory.Snapshot, Entry, error) {
	entries, err := a.List(ctx, namespace)
	if err != nil {
		return memory.Snapshot{}, Entry{}, err
	}
	if len(entries) == 0 {
		return memory.Snapshot{}, Entry{}, domain.NotFoundError{Entity: "archive", ID: namespace}
	}
	newest := entries[len(entries)-1]
	snap, err := a.Load(ctx, newest.Key)
	if err != nil {
		return memory.Snapshot{}, Entry{}, err
	}
	newest.Accounts = len(snap.Accounts)
	newest.Items = len(snap.Items)
	return snap, newest, nil
}

// Load decodes the archive stored at key.
func (a *Archiver) Load(ctx context.Context, key string) (memory.Snapshot, error) {
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return memory.Snapshot{}, domain.NotFoundError{Entity: "archive", ID: key}
		}
		return memory.Snapshot{}, fmt.Errorf("load archive %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	var snap memory.Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return memory.Snapshot{}, fmt.Errorf("decode archive %s: %w", key, err)
	}
	return snap, nil
}

func entryFromInfo(namespace string, info blob.Info) (Entry, bool) {
	name := strings.TrimPrefix(info.Key, prefixFor(namespace))
	if strings.Contains(name, "/") || !strings.HasSuffix(name, ".json") {
		return Entry{}, false
	}
	taken, err := time.Parse(keyLayout, strings.TrimSuffix(name, ".json"))
	if err != nil {
		return Entry{}, false
	}
	entry := Entry{Key: info.Key, Namespace: namespace, TakenAt: taken.UTC(), Size: info.Size, URL: info.URL}
	entry.Accounts, _ = strconv.Atoi(info.Metadata["accounts"])
	entry.Items, _ = strconv.Atoi(info.Metadata["items"])
	return entry, true
}
