package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// fixed-width so stored timestamps sort lexically in time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// TimeToString converts a time.Time to a UTC timestamp string for database storage
func TimeToString(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// StringToTime converts a stored timestamp string back to time.Time
func StringToTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// BoolToInt converts a boolean to integer for database storage (1 for true, 0 for false)
func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// IntToBool converts an integer from database to boolean (1 = true, 0 = false)
func IntToBool(i int) bool {
	return i == 1
}

// OpenDB opens (and creates if needed) the sqlite catalog at path
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// NewInMemoryDB creates a new in-memory SQLite database for testing
func NewInMemoryDB() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}

	// every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)

	return db, nil
}
