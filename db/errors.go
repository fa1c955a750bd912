package db

import (
	"strings"

	"github.com/teranos/strata/errors"
)

// ErrDatabaseClosed is returned for work attempted after shutdown closed the pool.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed matches ErrDatabaseClosed and the raw driver message,
// which database/sql returns unwrapped.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
