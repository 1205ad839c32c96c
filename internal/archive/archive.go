// Package archive keeps immutable versions of published figures. Every
// successful publish writes a new snapshot under a fresh ID; snapshots are
// never overwritten, so figures published before a cancellation stay
// readable.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrutin/scrutin/pkg/publication"
	"github.com/scrutin/scrutin/pkg/surface"
)

// ErrNotFound is returned when no snapshot exists under the requested key.
var ErrNotFound = errors.New("snapshot not found")

// Blobs abstracts blob storage for snapshot files.
type Blobs interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Snapshot is one published version of an entity's figures.
type Snapshot struct {
	ID          string                 `json:"id"`
	EntityType  publication.EntityType `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	PublishedAt time.Time              `json:"published_at"`
	PublishedBy string                 `json:"published_by"`
	Report      *surface.Report        `json:"report"`
}

// Archive writes and reads snapshots through a Blobs backend with an LRU
// read cache in front.
type Archive struct {
	blobs Blobs
	cache *Cache
}

// New creates an Archive. A cacheSize of zero or less uses the default.
func New(blobs Blobs, cacheSize int) *Archive {
	return &Archive{blobs: blobs, cache: NewCache(cacheSize)}
}

// NewID returns a fresh snapshot ID.
func NewID() string {
	return uuid.NewString()
}

func key(entityType publication.EntityType, entityID, id, ext string) string {
	return string(entityType) + "/" + entityID + "/" + id + ext
}

// Save stores snap as JSON, plus a Markdown bulletin next to it.
func (a *Archive) Save(ctx context.Context, snap *Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("save snapshot: empty id")
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}
	jsonKey := key(snap.EntityType, snap.EntityID, snap.ID, ".json")
	if err := a.blobs.Put(ctx, jsonKey, "application/json", data); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.ID, err)
	}
	bulletin := []byte(surface.BuildBulletin(snap.Report))
	if err := a.blobs.Put(ctx, key(snap.EntityType, snap.EntityID, snap.ID, ".md"), "text/markdown", bulletin); err != nil {
		return fmt.Errorf("save bulletin %s: %w", snap.ID, err)
	}
	a.cache.Put(jsonKey, snap)
	return nil
}

// Load reads a snapshot of the given entity.
func (a *Archive) Load(ctx context.Context, entityType publication.EntityType, entityID, id string) (*Snapshot, error) {
	k := key(entityType, entityID, id, ".json")
	if snap := a.cache.Get(k); snap != nil {
		return snap, nil
	}

	data, err := a.blobs.Get(ctx, k)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	a.cache.Put(k, &snap)
	return &snap, nil
}
