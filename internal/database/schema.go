package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Column describes one column of a table, as reported by PRAGMA table_info
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	Default    string
	PrimaryKey bool
}

// TableColumns returns the columns of a table
func (d *Database) TableColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := d.Query(ctx, `PRAGMA table_info(`+quoteSQLIdentifier(table)+`)`)
	if err != nil {
		return nil, fmt.Errorf("getting schema for table %s: %w", table, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var cid, notNull, primaryKey int
		var name, dataType string
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &primaryKey); err != nil {
			return nil, fmt.Errorf("scanning schema row: %w", err)
		}

		defaultStr := "NULL"
		if defaultValue.Valid {
			defaultStr = defaultValue.String
		}

		columns = append(columns, Column{
			Name:       name,
			Type:       dataType,
			NotNull:    notNull != 0,
			Default:    defaultStr,
			PrimaryKey: primaryKey != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schema: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s does not exist", table)
	}

	return columns, nil
}

// Table is a catalog table and its columns
type Table struct {
	Name    string
	Columns []Column
}

// Schema describes every table of the catalog
func (d *Database) Schema(ctx context.Context) ([]Table, error) {
	names, err := d.Tables(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		columns, err := d.TableColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, Table{Name: name, Columns: columns})
	}
	return tables, nil
}

// quoteSQLIdentifier quotes SQL identifiers to prevent conflicts with reserved words
func quoteSQLIdentifier(identifier string) string {
	// In SQLite, identifiers can be quoted with double quotes
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
