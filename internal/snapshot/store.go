// Package snapshot persists rendered chart images with a JSON sidecar.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for an id with no stored snapshot.
var ErrNotFound = errors.New("snapshot not found")

// ErrInvalidID is returned for an id that is not a canonical UUID.
var ErrInvalidID = errors.New("invalid snapshot id")

// Meta describes one stored chart image.
type Meta struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	Symbol     string    `json:"symbol,omitempty"`
	Timeframe  string    `json:"timeframe"`
	Format     string    `json:"format"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	PixelRatio float64   `json:"pixel_ratio"`
	State      string    `json:"state"`
	Source     string    `json:"source"`
	SizeBytes  int       `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store manages snapshot files in one directory.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// NewID returns a fresh snapshot id.
func NewID() string {
	return uuid.NewString()
}

func validateID(id string) error {
	u, err := uuid.Parse(id)
	if err != nil || u.String() != id {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func validateFormat(format string) error {
	switch format {
	case "svg", "png":
		return nil
	default:
		return fmt.Errorf("invalid snapshot format: %q", format)
	}
}

func (s *Store) imagePath(id, format string) string {
	return filepath.Join(s.dir, id+"."+format)
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the image and then its sidecar. SizeBytes is filled in, and
// CreatedAt when zero.
func (s *Store) Save(meta Meta, image []byte) (Meta, error) {
	if err := validateID(meta.ID); err != nil {
		return Meta{}, err
	}
	if err := validateFormat(meta.Format); err != nil {
		return Meta{}, err
	}
	meta.SizeBytes = len(image)
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	imgPath := s.imagePath(meta.ID, meta.Format)
	if err := os.WriteFile(imgPath, image, 0o644); err != nil {
		return Meta{}, fmt.Errorf("snapshot store: write image: %w", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.Remove(imgPath)
		return Meta{}, fmt.Errorf("snapshot store: marshal meta: %w", err)
	}
	if err := os.WriteFile(s.metaPath(meta.ID), data, 0o644); err != nil {
		_ = os.Remove(imgPath)
		return Meta{}, fmt.Errorf("snapshot store: write meta: %w", err)
	}
	return meta, nil
}

// Get reads the sidecar for id.
func (s *Store) Get(id string) (Meta, error) {
	if err := validateID(id); err != nil {
		return Meta{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMeta(id)
}

func (s *Store) readMeta(id string) (Meta, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Meta{}, fmt.Errorf("snapshot store: read meta: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, fmt.Errorf("snapshot store: unmarshal meta: %w", err)
	}
	return meta, nil
}

// List returns every readable sidecar, newest first. Unreadable sidecars are
// skipped with a debug log.
func (s *Store) List() ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("snapshot store: glob: %w", err)
	}
	metas := make([]Meta, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Debug("snapshot sidecar unreadable", "path", path, "error", err)
			continue
		}
		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			slog.Debug("snapshot sidecar malformed", "path", path, "error", err)
			continue
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// ReadImage returns the image bytes and the sidecar describing them.
func (s *Store) ReadImage(id string) ([]byte, Meta, error) {
	if err := validateID(id); err != nil {
		return nil, Meta{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.readMeta(id)
	if err != nil {
		return nil, Meta{}, err
	}
	data, err := os.ReadFile(s.imagePath(id, meta.Format))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Meta{}, fmt.Errorf("%w: image for %s", ErrNotFound, id)
		}
		return nil, Meta{}, fmt.Errorf("snapshot store: read image: %w", err)
	}
	return data, meta, nil
}

// Delete removes the image and sidecar. A missing image is logged, not fatal.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMeta(id)
	if err != nil {
		return err
	}
	if err := os.Remove(s.imagePath(id, meta.Format)); err != nil {
		slog.Debug("snapshot image cleanup failed", "id", id, "error", err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snapshot store: remove meta: %w", err)
	}
	return nil
}

// Prune deletes all but the newest keep snapshots and returns how many it removed.
func (s *Store) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	metas, err := s.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range metas[min(keep, len(metas)):] {
		if err := s.Delete(m.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
