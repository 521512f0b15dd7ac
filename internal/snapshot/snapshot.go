// Package snapshot archives whole-session store contents to a blob store and
// reads them back.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cloudmock/internal/blob"
	"cloudmock/internal/presets"
	"cloudmock/pkg/domain"
)

// FormatVersion is written into every document; Load rejects other versions.
const FormatVersion = 1

const (
	keyPrefix   = "snapshots/"
	contentType = "application/json"
)

// ErrNotFound is returned by Load for an unknown snapshot id.
var ErrNotFound = errors.New("snapshot not found")

// Document is the archived form of a session: every table and id sequence
// (which includes the event log and the seen cursor) plus the presets it ran.
type Document struct {
	Version int               `json:"version"`
	ID      string            `json:"id"`
	Name    string            `json:"name,omitempty"`
	Session string            `json:"session"`
	SavedAt time.Time         `json:"saved_at"`
	Presets presets.Selection `json:"presets"`
	Store   domain.Snapshot   `json:"store"`
}

// Summary is the listing view of a stored snapshot.
type Summary struct {
	ID      string    `json:"id"`
	Name    string    `json:"name,omitempty"`
	Size    int64     `json:"size_bytes"`
	SavedAt time.Time `json:"saved_at"`
}

// Archive stores Documents under snapshots/<id>.json.
type Archive struct {
	blobs blob.Store
	log   logrus.FieldLogger
}

// NewArchive wraps blobs.
func NewArchive(blobs blob.Store, log logrus.FieldLogger) *Archive {
	return &Archive{blobs: blobs, log: log}
}

// Driver reports the backing blob driver.
func (a *Archive) Driver() blob.Driver { return a.blobs.Driver() }

func keyFor(id string) string { return keyPrefix + id + ".json" }

// Save exports store and writes it under a fresh id.
func (a *Archive) Save(ctx context.Context, store domain.Store, doc Document) (Document, error) {
	snap, err := store.Export(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("export store: %w", err)
	}
	doc.Version = FormatVersion
	doc.ID = uuid.NewString()
	doc.Store = snap
	body, err := json.Marshal(doc)
	if err != nil {
		return Document{}, fmt.Errorf("encode snapshot: %w", err)
	}
	meta := map[string]string{"saved-at": doc.SavedAt.UTC().Format(time.RFC3339)}
	if doc.Name != "" {
		meta["name"] = doc.Name
	}
	info, err := a.blobs.Put(ctx, keyFor(doc.ID), bytes.NewReader(body), blob.PutOptions{ContentType: contentType, Metadata: meta})
	if err != nil {
		return Document{}, fmt.Errorf("write snapshot: %w", err)
	}
	a.log.WithFields(logrus.Fields{"snapshot": doc.ID, "bytes": info.Size, "driver": a.blobs.Driver()}).Info("snapshot saved")
	return doc, nil
}

// Load reads the document stored under id.
func (a *Archive) Load(ctx context.Context, id string) (Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	_, rc, err := a.blobs.Get(ctx, keyFor(id))
	if errors.Is(err, blob.ErrNotFound) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("read snapshot: %w", err)
	}
	defer rc.Close()
	var doc Document
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	if doc.Version != FormatVersion {
		return Document{}, fmt.Errorf("snapshot %s has format version %d, want %d", id, doc.Version, FormatVersion)
	}
	return doc, nil
}

// Restore replaces the contents of store with the document under id.
func (a *Archive) Restore(ctx context.Context, store domain.Store, id string) (Document, error) {
	doc, err := a.Load(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if err := store.Import(ctx, doc.Store); err != nil {
		return Document{}, fmt.Errorf("import snapshot %s: %w", id, err)
	}
	a.log.WithField("snapshot", id).Info("snapshot restored")
	return doc, nil
}

// List returns stored snapshots ordered by id.
func (a *Archive) List(ctx context.Context) ([]Summary, error) {
	infos, err := a.blobs.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]Summary, 0, len(infos))
	for _, info := range infos {
		id := strings.TrimSuffix(strings.TrimPrefix(info.Key, keyPrefix), ".json")
		s := Summary{ID: id, Size: info.Size, SavedAt: info.LastModified, Name: info.Metadata["name"]}
		if t, err := time.Parse(time.RFC3339, info.Metadata["saved-at"]); err == nil {
			s.SavedAt = t
		}
		out = append(out, s)
	}
	return out, nil
}

// Delete removes the snapshot under id.
func (a *Archive) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	existed, err := a.blobs.Delete(ctx, keyFor(id))
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if !existed {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
