package network

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/unicity-labs/headernet/log"
)

// maxAnchors caps the number of outbound block-relay connections
// persisted across restarts; on restart the node reconnects to these
// first, before the address manager's normal selection kicks in, so a
// restarting node resists being re-eclipsed by an attacker who merely
// waits for a bounce.
const maxAnchors = 2

// Anchor is one persisted outbound peer address.
type Anchor struct {
	Addr     string `json:"addr"`
	Services uint64 `json:"services"`
}

// AnchorStore persists up to maxAnchors outbound addresses to a JSON file
// on disk, writing atomically via a temp-file-then-rename so a crash mid
// write never corrupts the previous snapshot.
type AnchorStore struct {
	path string
	log  log.Logger
}

// NewAnchorStore returns a store backed by datadir/anchors.json.
func NewAnchorStore(datadir string) *AnchorStore {
	return &AnchorStore{
		path: filepath.Join(datadir, "anchors.json"),
		log:  log.New("module", "anchors"),
	}
}

// Load reads the persisted anchor list, or returns an empty slice if no
// file exists yet.
func (s *AnchorStore) Load() ([]Anchor, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var anchors []Anchor
	if err := json.Unmarshal(data, &anchors); err != nil {
		return nil, err
	}
	return anchors, nil
}

// Save persists anchors, truncated to maxAnchors, atomically.
func (s *AnchorStore) Save(anchors []Anchor) error {
	if len(anchors) > maxAnchors {
		anchors = anchors[:maxAnchors]
	}
	data, err := json.MarshalIndent(anchors, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + "." + uuid.New().String() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	s.log.Debug("anchors saved", "count", len(anchors), "path", s.path)
	return nil
}
