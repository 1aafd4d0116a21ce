package db

import (
	"fmt"

	"gorm.io/gorm"
)

// Reset deletes every row of every table in Models, so a demo dataset can be
// seeded from a fresh start. The match_events id sequence is reset as well.
//
// Compatible with both MySQL and SQLite.
func Reset(db *gorm.DB) error {
	all := db.Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range Models() {
		if err := all.Delete(model).Error; err != nil {
			return fmt.Errorf("failed to clear %T: %w", model, err)
		}
	}

	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE match_events AUTO_INCREMENT = 1")
	case "sqlite":
		// sqlite_sequence only exists once an AUTOINCREMENT table saw an insert
		db.Exec("DELETE FROM sqlite_sequence WHERE name = 'match_events'")
	}
	return nil
}
