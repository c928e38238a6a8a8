// Package storage exports engine snapshots (generated brackets, committed
// schedules) as JSON objects to S3-compatible storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gosimple/slug"
)

type PutResult struct {
	Key      string
	Location string
	ETag     string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, body io.Reader) (*PutResult, error)
	Delete(ctx context.Context, key string) error
}

// SnapshotKind names the exported document.
type SnapshotKind string

const (
	SnapshotBracket  SnapshotKind = "bracket"
	SnapshotSchedule SnapshotKind = "schedule"
)

// Snapshot is the envelope written for every export.
type Snapshot struct {
	Kind       SnapshotKind `json:"kind"`
	EventID    int          `json:"event_id"`
	EventName  string       `json:"event_name"`
	RunID      string       `json:"run_id"`
	ExportedAt time.Time    `json:"exported_at"`
	Data       interface{}  `json:"data"`
}

type Exporter interface {
	Export(ctx context.Context, snap Snapshot) (*PutResult, error)
}

type objectExporter struct {
	store  ObjectStore
	prefix string
	now    func() time.Time
}

func NewExporter(store ObjectStore, prefix string) Exporter {
	return &objectExporter{store: store, prefix: prefix, now: time.Now}
}

// SnapshotKey is the object key of a snapshot: <prefix>/<event slug>-<id>/<kind>/<run id>.json
func SnapshotKey(prefix string, snap Snapshot) string {
	eventPart := fmt.Sprintf("event-%d", snap.EventID)
	if s := slug.Make(snap.EventName); s != "" {
		eventPart = fmt.Sprintf("%s-%d", s, snap.EventID)
	}
	key := fmt.Sprintf("%s/%s/%s.json", eventPart, snap.Kind, snap.RunID)
	if prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

func (e *objectExporter) Export(ctx context.Context, snap Snapshot) (*PutResult, error) {
	if snap.RunID == "" {
		return nil, fmt.Errorf("snapshot of event %d has no run id", snap.EventID)
	}
	if snap.ExportedAt.IsZero() {
		snap.ExportedAt = e.now().UTC()
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s snapshot: %w", snap.Kind, err)
	}
	return e.store.Put(ctx, SnapshotKey(e.prefix, snap), "application/json", bytes.NewReader(body))
}

type nopExporter struct{}

// NopExporter is used when object storage is not configured.
func NopExporter() Exporter { return nopExporter{} }

func (nopExporter) Export(context.Context, Snapshot) (*PutResult, error) { return nil, nil }
