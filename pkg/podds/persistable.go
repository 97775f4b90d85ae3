package podds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/richard-senior/podds/internal/logger"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a record addressed by primary key does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned by Insert when the primary key is already taken
	ErrDuplicate = errors.New("duplicate record")
)

// Persistable interface defines methods that persistent objects must implement
type Persistable interface {
	GetTableName() string
	GetPrimaryKey() map[string]any
	BeforeSave() error
}

// Store owns the sqlite connection. Every query in the package goes through it.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens (creating if needed) the sqlite database at path and creates all tables.
// A single connection is used so writers serialise and ":memory:" databases behave.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Database initialized successfully", path)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// createTables creates all necessary database tables
func (s *Store) createTables(ctx context.Context) error {
	logger.Debug("Creating database tables")
	tables := []Persistable{
		&League{},
		&Team{},
		&Match{},
		&TeamStatistics{},
		&LeagueAverages{},
		&PredictionRecord{},
		&PredictionStats{},
		&CronExecution{},
	}
	for _, t := range tables {
		if err := s.CreateTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// CreateTable creates a table for the given persistable object using struct tags
func (s *Store) CreateTable(ctx context.Context, obj Persistable) error {
	tableName := obj.GetTableName()
	createSQL := generateCreateTableSQL(obj, tableName)

	logger.Debug("Creating table with SQL", createSQL)

	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	for _, query := range generateIndexSQL(obj, tableName) {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			logger.Warn("Failed to create index", err)
		}
	}
	return nil
}

// columnName resolves the column for a struct field
func columnName(field reflect.StructField) string {
	if c := field.Tag.Get("column"); c != "" {
		return c
	}
	return strings.ToLower(field.Name)
}

// persistedFields lists the exported fields carrying a dbtype tag
func persistedFields(t reflect.Type) []reflect.StructField {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	var fields []reflect.StructField
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || field.Tag.Get("dbtype") == "" {
			continue
		}
		fields = append(fields, field)
	}
	return fields
}

// generateCreateTableSQL generates CREATE TABLE SQL from struct tags
func generateCreateTableSQL(obj any, tableName string) string {
	var columns []string
	var primaryKeys []string
	var foreignKeys []string

	for _, field := range persistedFields(reflect.TypeOf(obj)) {
		dbType := field.Tag.Get("dbtype")
		col := columnName(field)

		if field.Tag.Get("primary") == "true" {
			primaryKeys = append(primaryKeys, col)
		}
		columns = append(columns, fmt.Sprintf("%s %s", col, dbType))

		// format: "table.column"
		if fkRef := field.Tag.Get("fk"); fkRef != "" {
			if parts := strings.Split(fkRef, "."); len(parts) == 2 {
				onDelete := field.Tag.Get("fk_delete")
				if onDelete == "" {
					onDelete = "RESTRICT"
				}
				foreignKeys = append(foreignKeys, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s) ON DELETE %s",
					col, parts[0], parts[1], onDelete))
			}
		}
	}

	if len(primaryKeys) > 0 {
		columns = append(columns, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(primaryKeys, ", ")))
	}
	columns = append(columns, foreignKeys...)

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tableName, strings.Join(columns, ", "))
}

// generateIndexSQL generates index creation SQL from struct tags
func generateIndexSQL(obj any, tableName string) []string {
	var indexSQL []string
	for _, field := range persistedFields(reflect.TypeOf(obj)) {
		if field.Tag.Get("index") == "" || field.Tag.Get("primary") == "true" {
			continue
		}
		col := columnName(field)
		indexSQL = append(indexSQL, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", tableName, col, tableName, col))
	}
	return indexSQL
}

// Save persists the object with a single INSERT ... ON CONFLICT DO UPDATE so
// concurrent writers of the same key never produce a second row.
func (s *Store) Save(ctx context.Context, obj Persistable) error {
	if err := obj.BeforeSave(); err != nil {
		return fmt.Errorf("before save hook failed: %w", err)
	}

	tableName := obj.GetTableName()
	columns, placeholders, values := getInsertData(obj)
	pk := sortedKeys(obj.GetPrimaryKey())

	var setPairs []string
	for _, field := range persistedFields(reflect.TypeOf(obj)) {
		if field.Tag.Get("primary") == "true" || field.Tag.Get("update") == "false" {
			continue
		}
		col := columnName(field)
		setPairs = append(setPairs, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		tableName, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
		strings.Join(pk, ", "), strings.Join(setPairs, ", "))

	logger.Debug("Upsert SQL", query)

	if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("failed to save into %s: %w", tableName, err)
	}
	return nil
}

// Insert adds a new record and reports ErrDuplicate if the primary key is taken
func (s *Store) Insert(ctx context.Context, obj Persistable) error {
	if err := obj.BeforeSave(); err != nil {
		return fmt.Errorf("before save hook failed: %w", err)
	}

	tableName := obj.GetTableName()
	columns, placeholders, values := getInsertData(obj)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	logger.Debug("Insert SQL", query)

	if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert into %s: %w", tableName, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert into %s: %w", tableName, err)
	}
	return nil
}

// Delete removes the object from the database
func (s *Store) Delete(ctx context.Context, obj Persistable) error {
	tableName := obj.GetTableName()
	whereClause, values := buildWhereClause(obj.GetPrimaryKey())

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", tableName, whereClause)
	if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", tableName, err)
	}
	return nil
}

// Exec runs a statement and returns the number of affected rows
func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// getInsertData extracts column names, placeholders, and values for INSERT
func getInsertData(obj any) ([]string, []string, []any) {
	objValue := reflect.ValueOf(obj)
	if objValue.Kind() == reflect.Ptr {
		objValue = objValue.Elem()
	}

	var columns []string
	var placeholders []string
	var values []any
	for _, field := range persistedFields(objValue.Type()) {
		columns = append(columns, columnName(field))
		placeholders = append(placeholders, "?")
		values = append(values, objValue.FieldByIndex(field.Index).Interface())
	}
	return columns, placeholders, values
}

// getSelectData extracts column names and scan destinations for SELECT
func getSelectData(obj any) ([]string, []any) {
	objValue := reflect.ValueOf(obj)
	if objValue.Kind() == reflect.Ptr {
		objValue = objValue.Elem()
	}

	var columns []string
	var destinations []any
	for _, field := range persistedFields(objValue.Type()) {
		columns = append(columns, columnName(field))
		destinations = append(destinations, objValue.FieldByIndex(field.Index).Addr().Interface())
	}
	return columns, destinations
}

// FindByPrimaryKey loads a single record. A missing record yields (nil, nil).
func FindByPrimaryKey[T any, P interface {
	*T
	Persistable
}](ctx context.Context, s *Store, primaryKey map[string]any) (*T, error) {
	whereClause, values := buildWhereClause(primaryKey)
	results, err := FindWhere[T, P](ctx, s, whereClause+" LIMIT 1", values...)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// FindWhere executes a custom WHERE query. The clause may carry ORDER BY and LIMIT.
func FindWhere[T any, P interface {
	*T
	Persistable
}](ctx context.Context, s *Store, whereClause string, args ...any) ([]*T, error) {
	var zero T
	tableName := P(&zero).GetTableName()
	columns, _ := getSelectData(&zero)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(columns, ", "), tableName, whereClause)

	logger.Debug("FindWhere SQL", query)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", tableName, err)
	}
	defer rows.Close()

	var results []*T
	for rows.Next() {
		obj := new(T)
		_, destinations := getSelectData(obj)
		if err := rows.Scan(destinations...); err != nil {
			return nil, fmt.Errorf("failed to scan row from %s: %w", tableName, err)
		}
		results = append(results, obj)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows from %s: %w", tableName, err)
	}
	return results, nil
}

// buildWhereClause builds a WHERE clause from a primary key map
func buildWhereClause(primaryKey map[string]any) (string, []any) {
	var conditions []string
	var values []any
	for _, column := range sortedKeys(primaryKey) {
		conditions = append(conditions, fmt.Sprintf("%s = ?", column))
		values = append(values, primaryKey[column])
	}
	return strings.Join(conditions, " AND "), values
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// isUniqueViolation reports whether err is a sqlite primary key or unique constraint failure
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}
