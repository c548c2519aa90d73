package models

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotFormatVersion is written into every snapshot file. Readers accept
// any 1.x version.
const SnapshotFormatVersion = "1.0.0"

type ModelSnapshot struct {
	Version   string    `json:"format_version"`
	Timestamp time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
	Schema    *Schema   `json:"schema"`
}

func NewModelSnapshot(schema *Schema, now time.Time) *ModelSnapshot {
	snapshot := &ModelSnapshot{
		Version:   SnapshotFormatVersion,
		Timestamp: now.UTC(),
		Schema:    schema.Clone(),
	}
	snapshot.Checksum = snapshot.calculateChecksum()
	return snapshot
}

func (s *ModelSnapshot) calculateChecksum() string {
	data := make(map[string]interface{})
	data["version"] = s.Version
	data["schema"] = s.Schema

	jsonData, _ := json.Marshal(data)
	return fmt.Sprintf("%x", md5.Sum(jsonData))
}

// Verify detects a snapshot whose schema was edited or truncated.
func (s *ModelSnapshot) Verify() error {
	if s.Schema == nil {
		return fmt.Errorf("%w: snapshot has no schema", ErrStorage)
	}
	if s.Checksum != "" && s.Checksum != s.calculateChecksum() {
		return fmt.Errorf("%w: snapshot checksum does not match its content", ErrStorage)
	}
	return nil
}
