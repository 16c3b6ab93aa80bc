package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// BlobVersion is the schema version written into every persisted blob.
// Blobs with any other version load as an empty cache.
const BlobVersion = 2

var (
	// ErrInvalidSnapshot indicates a snapshot that cannot be stored.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// errUnsupportedVersion marks blobs written with another schema.
	errUnsupportedVersion = errors.New("unsupported blob version")
)

// Snapshot is one cached page state.
type Snapshot struct {
	// CacheKey identifies the location the snapshot was captured at (see Key)
	CacheKey string `json:"cacheKey"`

	// Content is the serialized markup of the page body
	Content string `json:"content"`

	// Title is the document title at capture time
	Title string `json:"title"`

	// Scroll is the vertical scroll offset at capture time
	Scroll int `json:"scroll"`

	// Scripts are the announced script identifiers, in announce order
	Scripts []string `json:"scripts"`

	// CapturedAt is when the page was captured
	CapturedAt time.Time `json:"capturedAt"`
}

// Validate reports whether the snapshot can be stored.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	if s.CacheKey == "" {
		return fmt.Errorf("%w: empty cache key", ErrInvalidSnapshot)
	}
	return nil
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	if s.Scripts != nil {
		c.Scripts = append([]string(nil), s.Scripts...)
	}
	return &c
}

type blob struct {
	Version   int        `json:"version"`
	Snapshots []Snapshot `json:"snapshots"`
}

func encodeBlob(snaps []Snapshot) ([]byte, error) {
	if snaps == nil {
		snaps = []Snapshot{}
	}
	data, err := json.Marshal(blob{Version: BlobVersion, Snapshots: snaps})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshots: %w", err)
	}
	return data, nil
}

func decodeBlob(data []byte) ([]Snapshot, error) {
	if len(data) == 0 {
		return nil, nil
	}

	// Bare arrays are the unversioned legacy shape.
	if data[0] == '[' {
		return nil, fmt.Errorf("%w: legacy array", errUnsupportedVersion)
	}

	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal snapshots: %w", err)
	}
	if b.Version != BlobVersion {
		return nil, fmt.Errorf("%w: %d", errUnsupportedVersion, b.Version)
	}
	return b.Snapshots, nil
}
