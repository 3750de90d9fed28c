// Package sqlite provides small helpers for working with a sqlite schema
// that evolves across daemon versions without a full migration framework.
package sqlite

import "database/sql"

// BoolToInt converts a bool to the 0/1 representation sqlite stores it as.
func BoolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// ColumnExists reports whether the given column exists on table.
func ColumnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// EnsureColumn adds column to table with the given definition if it does
// not already exist, so the daemon can add fields across versions without
// a migration runner.
func EnsureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := ColumnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = db.Exec("ALTER TABLE " + table + " ADD COLUMN " + column + " " + definition)
	return err
}
