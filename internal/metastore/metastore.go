package metastore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record is one row of loosely-typed named values. On reads, values surface
// as int64, float64, string, []byte or nil depending on the storage class.
type Record map[string]any

// Column declares one column of a dynamic table.
type Column struct {
	Name string
	Type string // SQL type declaration, e.g. "TEXT PRIMARY KEY"
}

// ErrEmptyRecord is returned when an insert or update carries no columns.
var ErrEmptyRecord = errors.New("record has no columns")

// String returns the value of a text column, or "" when absent or non-text.
func (r Record) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Int returns the value of an integer column, or 0 when absent or non-numeric.
func (r Record) Int(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// CreateTable creates a table if it does not exist yet. The call is
// idempotent: repeating it with the same declaration leaves existing rows
// untouched. Table and column identifiers are validated before they are
// rendered into the statement.
func (db *DB) CreateTable(name string, columns []Column) error {
	if err := validIdentifier(name); err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("create table %s: %w", name, ErrEmptyRecord)
	}

	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		if err := validIdentifier(col.Name); err != nil {
			return err
		}
		if err := validTypeDecl(col.Type); err != nil {
			return err
		}
		defs = append(defs, col.Name+" "+col.Type)
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, strings.Join(defs, ", "))
	if _, err := db.Exec(stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	return nil
}

// Insert adds one record to a table using named placeholders derived from the
// record's keys.
func (db *DB) Insert(table string, rec Record) error {
	if err := validIdentifier(table); err != nil {
		return err
	}
	if len(rec) == 0 {
		return fmt.Errorf("insert into %s: %w", table, ErrEmptyRecord)
	}

	keys := sortedKeys(rec)
	placeholders := make([]string, 0, len(keys))
	bound := make(map[string]any, len(keys))
	for _, k := range keys {
		if err := validIdentifier(k); err != nil {
			return err
		}
		placeholders = append(placeholders, ":"+k)
		bound[k] = normalizeValue(rec[k])
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(keys, ", "), strings.Join(placeholders, ", "))
	if _, err := db.NamedExec(stmt, bound); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// Query selects all rows matching the given predicates, in storage scan
// order. No predicates means every row.
func (db *DB) Query(table string, preds ...Predicate) ([]Record, error) {
	if err := validIdentifier(table); err != nil {
		return nil, err
	}
	where, args, err := compile(preds)
	if err != nil {
		return nil, err
	}

	rows, err := db.Queryx(fmt.Sprintf("SELECT * FROM %s%s", table, where), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan row from %s: %w", table, err)
		}
		results = append(results, Record(row))
	}
	return results, rows.Err()
}

// Update sets the record's columns on every row matching the predicates and
// returns the number of rows affected. Columns are bound in lexicographic key
// order so parameter positions are deterministic.
func (db *DB) Update(table string, rec Record, preds ...Predicate) (int64, error) {
	if err := validIdentifier(table); err != nil {
		return 0, err
	}
	if len(rec) == 0 {
		return 0, fmt.Errorf("update %s: %w", table, ErrEmptyRecord)
	}

	keys := sortedKeys(rec)
	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		if err := validIdentifier(k); err != nil {
			return 0, err
		}
		sets = append(sets, k+" = ?")
		args = append(args, normalizeValue(rec[k]))
	}

	where, whereArgs, err := compile(preds)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	res, err := db.Exec(fmt.Sprintf("UPDATE %s SET %s%s", table, strings.Join(sets, ", "), where), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Delete removes every row matching the predicates and returns the number of
// rows affected.
func (db *DB) Delete(table string, preds ...Predicate) (int64, error) {
	if err := validIdentifier(table); err != nil {
		return 0, err
	}
	where, args, err := compile(preds)
	if err != nil {
		return 0, err
	}

	res, err := db.Exec(fmt.Sprintf("DELETE FROM %s%s", table, where), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return res.RowsAffected()
}

func sortedKeys(rec Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalizeValue maps arbitrary values onto the driver's supported types.
// Unknown types fall back to their string representation.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil, int64, float64, string, []byte, bool:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	case time.Time:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
