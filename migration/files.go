package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Script suffixes. Matching ignores case.
const (
	UpSuffix   = ".up.sql"
	DownSuffix = ".down.sql"
)

// LockFileName is the advisory lock kept in the migrations directory.
const LockFileName = ".sqlkit_migration.lock"

// Checksum returns the SHA-256 hex digest of a script.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ParseFilename splits a migration file name into its id and direction.
// ok is false for files that are not migration scripts.
func ParseFilename(name string) (id string, dir MigrationDirection, ok bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, UpSuffix):
		return name[:len(name)-len(UpSuffix)], Up, true
	case strings.HasSuffix(lower, DownSuffix):
		return name[:len(name)-len(DownSuffix)], Down, true
	}
	return "", "", false
}

// ScanDir lists migration pairs in dir, sorted by id. A missing directory
// holds no migrations. Down scripts without an up script are ignored.
func ScanDir(dir string) ([]Pair, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory path cannot be empty")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Pair{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	ups := make(map[string]string)
	downs := make(map[string]string)
	for _, entry := range entries {
		// Skip subdirectories, lock files and editor droppings.
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		id, direction, ok := ParseFilename(entry.Name())
		if !ok {
			continue
		}
		target := ups
		if direction == Down {
			target = downs
		}
		path := filepath.Join(dir, entry.Name())
		if prev, dup := target[id]; dup {
			return nil, ErrDuplicateMigration(id, prev, path)
		}
		target[id] = path
	}

	pairs := make([]Pair, 0, len(ups))
	for id, upPath := range ups {
		content, err := os.ReadFile(upPath)
		if err != nil {
			return nil, ErrInvalidMigrationFile(filepath.Base(upPath), err)
		}
		pairs = append(pairs, Pair{
			ID:       id,
			UpPath:   upPath,
			DownPath: downs[id],
			Checksum: Checksum(content),
		})
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].ID < pairs[j].ID
	})
	return pairs, nil
}

// ReadScript loads a script and returns its statements along with the
// checksum of the raw content.
func ReadScript(path string) ([]string, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", ErrInvalidMigrationFile(filepath.Base(path), err)
	}
	return SplitStatements(string(content)), Checksum(content), nil
}

// WriteScripts writes <id>.up.sql and <id>.down.sql into dir. It refuses to
// overwrite an existing migration.
func WriteScripts(dir, id, up, down string) (upPath, downPath string, err error) {
	if err := InitMigrationDirectory(dir); err != nil {
		return "", "", fmt.Errorf("failed to initialize directory: %w", err)
	}

	upPath = filepath.Join(dir, id+UpSuffix)
	downPath = filepath.Join(dir, id+DownSuffix)
	for _, p := range []string{upPath, downPath} {
		if fileExists(dir, filepath.Base(p)) {
			return "", "", ErrDuplicateMigration(id, p)
		}
	}

	if err := os.WriteFile(upPath, []byte(up), 0644); err != nil {
		return "", "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.WriteFile(downPath, []byte(down), 0644); err != nil {
		return "", "", fmt.Errorf("failed to write file: %w", err)
	}
	return upPath, downPath, nil
}

// InitMigrationDirectory creates a migration directory if it doesn't exist.
// Warns if directory has world-writable permissions.
func InitMigrationDirectory(dir string) error {
	if dir == "" {
		return fmt.Errorf("directory path cannot be empty")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if mode := info.Mode().Perm(); mode&0002 != 0 {
		fmt.Fprintf(os.Stderr, "Warning: migration directory %s has world-writable permissions (%s). This may be a security risk.\n", dir, mode)
	}
	return nil
}

func fileExists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
