package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotVersion is written into every snapshot.
const SnapshotVersion = 1

type snapshot struct {
	Version int      `json:"version"`
	Tables  *[]Table `json:"tables"`
}

// FromJSON decodes and validates a snapshot. A missing "tables" key, an
// unknown base tag or a version other than 1 is an error.
func FromJSON(data []byte) (*Schema, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		var se *SchemaError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, errInvalidSnapshot("malformed snapshot JSON", err)
	}
	if snap.Tables == nil {
		return nil, errInvalidSnapshot("invalid schema snapshot: missing 'tables'", nil)
	}
	if snap.Version != 0 && snap.Version != SnapshotVersion {
		return nil, errInvalidSnapshot(fmt.Sprintf("unsupported snapshot version %d", snap.Version), nil)
	}

	s := &Schema{Tables: *snap.Tables}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ToJSON encodes s as an indented snapshot.
func ToJSON(s *Schema) ([]byte, error) {
	tables := make([]Table, len(s.Tables))
	for i, t := range s.Tables {
		if t.Columns == nil {
			t.Columns = []Column{}
		}
		indexes := make([]Index, len(t.Indexes))
		for j, ix := range t.Indexes {
			if ix.Columns == nil {
				ix.Columns = []string{}
			}
			indexes[j] = ix
		}
		t.Indexes = indexes
		tables[i] = t
	}
	return json.MarshalIndent(snapshot{Version: SnapshotVersion, Tables: &tables}, "", "  ")
}

// LoadFile reads a snapshot from disk.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	return FromJSON(data)
}

// LoadFileOrEmpty is LoadFile, except that a missing file yields an empty
// schema.
func LoadFileOrEmpty(path string) (*Schema, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &Schema{}, nil
	}
	return LoadFile(path)
}

// SaveFile writes s to path, creating parent directories.
func SaveFile(path string, s *Schema) error {
	data, err := ToJSON(s)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write schema file %s: %w", path, err)
	}
	return nil
}
