package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	objects     map[string][]byte
	contentType string
	err         error
}

func (m *memoryStore) Put(_ context.Context, key, contentType string, body io.Reader) (*PutResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = raw
	m.contentType = contentType
	return &PutResult{Key: key}, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func TestSnapshotKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		snap   Snapshot
		want   string
	}{
		{"slugged name", "exports", Snapshot{Kind: SnapshotBracket, EventID: 4, EventName: "Open de Verano 2026", RunID: "r1"},
			"exports/open-de-verano-2026-4/bracket/r1.json"},
		{"no prefix", "", Snapshot{Kind: SnapshotSchedule, EventID: 9, EventName: "Cup", RunID: "r2"},
			"cup-9/schedule/r2.json"},
		{"unsluggable name", "x", Snapshot{Kind: SnapshotSchedule, EventID: 9, EventName: "", RunID: "r3"},
			"x/event-9/schedule/r3.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SnapshotKey(tt.prefix, tt.snap))
		})
	}
}

func TestExporter_WritesJSONEnvelope(t *testing.T) {
	store := &memoryStore{}
	exp := &objectExporter{store: store, prefix: "exports", now: func() time.Time {
		return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	}}

	res, err := exp.Export(context.Background(), Snapshot{
		Kind: SnapshotSchedule, EventID: 1, EventName: "Cup", RunID: "run-1",
		Data: map[string]int{"placed": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "exports/cup-1/schedule/run-1.json", res.Key)
	assert.Equal(t, "application/json", store.contentType)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(store.objects[res.Key], &got))
	assert.Equal(t, "schedule", got["kind"])
	assert.Equal(t, "2026-06-01T12:00:00Z", got["exported_at"])
	assert.Equal(t, map[string]interface{}{"placed": 3.0}, got["data"])
}

func TestExporter_Errors(t *testing.T) {
	exp := NewExporter(&memoryStore{err: errors.New("boom")}, "")

	_, err := exp.Export(context.Background(), Snapshot{Kind: SnapshotBracket, EventID: 1})
	assert.ErrorContains(t, err, "no run id")

	_, err = exp.Export(context.Background(), Snapshot{Kind: SnapshotBracket, EventID: 1, RunID: "r"})
	assert.EqualError(t, err, "boom")
}

func TestNopExporter(t *testing.T) {
	res, err := NopExporter().Export(context.Background(), Snapshot{})
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/exports/a.json", PublicURL("https://cdn.example.com", "exports/a.json"))
	assert.Equal(t, "https://cdn.example.com/base/a.json", PublicURL("https://cdn.example.com/base/", "/a.json"))
	assert.Equal(t, "", PublicURL("", "a.json"))
}
