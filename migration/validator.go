package migration

import "fmt"

// MigrationValidator compares migrations on disk with the ledger.
type MigrationValidator struct {
	pairs   []Pair
	records []Record
	byID    map[string]Record
}

// NewMigrationValidator takes pairs sorted by id and ledger records in
// apply order.
func NewMigrationValidator(pairs []Pair, records []Record) *MigrationValidator {
	byID := make(map[string]Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	return &MigrationValidator{pairs: pairs, records: records, byID: byID}
}

// IsApplied reports whether the ledger has a row for id.
func (v *MigrationValidator) IsApplied(id string) bool {
	_, ok := v.byID[id]
	return ok
}

// Validate reports drift, missing scripts and ordering problems.
func (v *MigrationValidator) Validate() *ValidationResult {
	result := &ValidationResult{
		Valid:             true,
		Conflicts:         make([]MigrationConflict, 0),
		PendingMigrations: make([]string, 0),
		AppliedMigrations: make([]string, 0, len(v.records)),
	}
	for _, r := range v.records {
		result.AppliedMigrations = append(result.AppliedMigrations, r.ID)
	}

	for _, p := range v.pairs {
		if !v.IsApplied(p.ID) {
			result.PendingMigrations = append(result.PendingMigrations, p.ID)
		}
	}

	result.Conflicts = append(result.Conflicts, v.ChecksumConflicts()...)
	result.Conflicts = append(result.Conflicts, v.missingScripts()...)
	result.Conflicts = append(result.Conflicts, v.validateOrdering()...)
	result.Valid = len(result.Conflicts) == 0
	return result
}

// ChecksumConflicts lists applied migrations whose up script changed since
// it was recorded.
func (v *MigrationValidator) ChecksumConflicts() []MigrationConflict {
	conflicts := make([]MigrationConflict, 0)
	for _, p := range v.pairs {
		r, ok := v.byID[p.ID]
		if !ok || r.Checksum == p.Checksum {
			continue
		}
		conflicts = append(conflicts, MigrationConflict{
			Type:        ChecksumMismatch,
			MigrationID: p.ID,
			Message:     fmt.Sprintf("migration '%s' has been modified (checksum mismatch)", p.ID),
			Expected:    r.Checksum,
			Actual:      p.Checksum,
		})
	}
	return conflicts
}

func (v *MigrationValidator) missingScripts() []MigrationConflict {
	onDisk := make(map[string]bool, len(v.pairs))
	for _, p := range v.pairs {
		onDisk[p.ID] = true
	}

	conflicts := make([]MigrationConflict, 0)
	for _, r := range v.records {
		if onDisk[r.ID] {
			continue
		}
		conflicts = append(conflicts, MigrationConflict{
			Type:        MissingScript,
			MigrationID: r.ID,
			Message:     fmt.Sprintf("applied migration '%s' has no up script on disk", r.ID),
			Expected:    r.ID + UpSuffix,
			Actual:      "not_found",
		})
	}
	return conflicts
}

// validateOrdering flags pending migrations whose id sorts before the
// highest applied id. They will still run, but after newer ones.
func (v *MigrationValidator) validateOrdering() []MigrationConflict {
	conflicts := make([]MigrationConflict, 0)

	highest := ""
	for _, r := range v.records {
		if r.ID > highest {
			highest = r.ID
		}
	}
	if highest == "" {
		return conflicts
	}

	for _, p := range v.pairs {
		if !v.IsApplied(p.ID) && p.ID < highest {
			conflicts = append(conflicts, MigrationConflict{
				Type:        OrderConflict,
				MigrationID: p.ID,
				Message:     fmt.Sprintf("migration ID '%s' is out of order (last applied: '%s')", p.ID, highest),
				Expected:    fmt.Sprintf("> %s", highest),
				Actual:      p.ID,
			})
		}
	}
	return conflicts
}
