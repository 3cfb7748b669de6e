package services

import (
	"testing"
	"time"

	"guardian-api/internal/database"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { database.Close(db) })
	return db
}

// fixedClock returns a clock frozen at t along with a setter
func fixedClock(t time.Time) (func() time.Time, func(time.Time)) {
	now := t
	return func() time.Time { return now }, func(next time.Time) { now = next }
}

func intPtr(n int) *int { return &n }
