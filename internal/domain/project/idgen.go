package project

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Strob0t/CaseForge/internal/domain"
)

// ID prefixes per entity kind.
const (
	PrefixProject  = "PROJ_"
	PrefixEpic     = "EPIC_"
	PrefixFeature  = "FEAT_"
	PrefixUseCase  = "UC_"
	PrefixTestCase = "TC_"
)

// maxIDAttempts bounds GenerateUniqueID before it reports a conflict.
const maxIDAttempts = 16

// newUUID is swapped in tests to force collisions.
var newUUID = uuid.NewString

// GenerateID returns prefix followed by 8 hex characters of a random UUID.
func GenerateID(prefix string) string {
	return prefix + strings.ReplaceAll(newUUID(), "-", "")[:8]
}

// GenerateUniqueID draws IDs until taken reports false for one of them.
func GenerateUniqueID(prefix string, taken func(string) bool) (string, error) {
	for range maxIDAttempts {
		id := GenerateID(prefix)
		if !taken(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("generate %sID: %d collisions in a row: %w", prefix, maxIDAttempts, domain.ErrConflict)
}
