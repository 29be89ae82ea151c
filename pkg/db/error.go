package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// duplicateMarkers covers the unique-violation wording of the
// dialects Dialect can open: postgres 23505, mysql 1062, sqlite 2067.
var duplicateMarkers = []string{
	"duplicate key value violates unique constraint",
	"Error 1062",
	"UNIQUE constraint failed",
}

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	for _, marker := range duplicateMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
