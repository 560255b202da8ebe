package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/animus-labs/gluejobs/internal/platform/database"
)

// SQLCatalog stores tables in catalog_tables and catalog_partitions. Column
// lists and parameters are JSON text; times are unix milliseconds.
type SQLCatalog struct {
	db  *database.DB
	now func() time.Time
}

const (
	selectTableColumns = `database_name, table_name, location, format, compression, columns, partition_keys, parameters, created_at, updated_at`

	upsertTableQuery = `INSERT INTO catalog_tables (
		database_name,
		table_name,
		location,
		format,
		compression,
		columns,
		partition_keys,
		parameters,
		created_at,
		updated_at
	) VALUES (?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT (database_name, table_name) DO UPDATE SET
		location = excluded.location,
		format = excluded.format,
		compression = excluded.compression,
		columns = excluded.columns,
		partition_keys = excluded.partition_keys,
		parameters = excluded.parameters,
		updated_at = excluded.updated_at`

	upsertPartitionQuery = `INSERT INTO catalog_partitions (
		database_name,
		table_name,
		partition_values,
		location,
		created_at
	) VALUES (?,?,?,?,?)
	ON CONFLICT (database_name, table_name, partition_values) DO UPDATE SET
		location = excluded.location`
)

func NewSQLCatalog(db *database.DB) *SQLCatalog {
	if db == nil {
		return nil
	}
	return &SQLCatalog{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (c *SQLCatalog) EnsureSchema(ctx context.Context) error {
	if c == nil || c.db == nil {
		return errors.New("sql catalog not initialized")
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS catalog_tables (
			database_name TEXT NOT NULL,
			table_name TEXT NOT NULL,
			location TEXT NOT NULL,
			format TEXT NOT NULL,
			compression TEXT NOT NULL,
			columns TEXT NOT NULL,
			partition_keys TEXT NOT NULL,
			parameters TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (database_name, table_name)
		)`,
		`CREATE TABLE IF NOT EXISTS catalog_partitions (
			database_name TEXT NOT NULL,
			table_name TEXT NOT NULL,
			partition_values TEXT NOT NULL,
			location TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (database_name, table_name, partition_values)
		)`,
	}
	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create catalog schema: %w", err)
		}
	}
	return nil
}

func (c *SQLCatalog) GetTable(ctx context.Context, databaseName, name string) (Table, error) {
	if c == nil || c.db == nil {
		return Table{}, errors.New("sql catalog not initialized")
	}
	row := c.db.QueryRowContext(ctx,
		c.db.Dialect.Rebind(`SELECT `+selectTableColumns+` FROM catalog_tables WHERE database_name = ? AND table_name = ?`),
		NormalizeName(databaseName),
		NormalizeName(name),
	)
	t, err := scanTable(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Table{}, fmt.Errorf("%w: %s.%s", ErrTableNotFound, databaseName, name)
	}
	if err != nil {
		return Table{}, fmt.Errorf("get table %s.%s: %w", databaseName, name, err)
	}
	return t, nil
}

func (c *SQLCatalog) ListTables(ctx context.Context, databaseName string) ([]Table, error) {
	if c == nil || c.db == nil {
		return nil, errors.New("sql catalog not initialized")
	}
	query := `SELECT ` + selectTableColumns + ` FROM catalog_tables`
	args := []any{}
	if db := NormalizeName(databaseName); db != "" {
		query += ` WHERE database_name = ?`
		args = append(args, db)
	}
	query += ` ORDER BY database_name, table_name`

	rows, err := c.db.QueryContext(ctx, c.db.Dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	out := make([]Table, 0)
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return out, nil
}

func (c *SQLCatalog) UpsertTable(ctx context.Context, table Table) (Table, error) {
	if c == nil || c.db == nil {
		return Table{}, errors.New("sql catalog not initialized")
	}
	if err := table.Validate(); err != nil {
		return Table{}, err
	}
	table = normalizeTable(table)

	columnsJSON, err := json.Marshal(table.Columns)
	if err != nil {
		return Table{}, fmt.Errorf("marshal columns: %w", err)
	}
	keysJSON, err := json.Marshal(table.PartitionKeys)
	if err != nil {
		return Table{}, fmt.Errorf("marshal partition keys: %w", err)
	}
	paramsJSON, err := json.Marshal(table.Parameters)
	if err != nil {
		return Table{}, fmt.Errorf("marshal parameters: %w", err)
	}

	now := c.now().UnixMilli()
	_, err = c.db.ExecContext(ctx, c.db.Dialect.Rebind(upsertTableQuery),
		table.Database,
		table.Name,
		table.Location,
		table.Format,
		table.Compression,
		string(columnsJSON),
		string(keysJSON),
		string(paramsJSON),
		now,
		now,
	)
	if err != nil {
		return Table{}, fmt.Errorf("upsert table %s.%s: %w", table.Database, table.Name, err)
	}
	return c.GetTable(ctx, table.Database, table.Name)
}

func (c *SQLCatalog) AddPartitions(ctx context.Context, databaseName, name string, partitions []Partition) error {
	t, err := c.GetTable(ctx, databaseName, name)
	if err != nil {
		return err
	}
	if err := validatePartitions(t, partitions); err != nil {
		return err
	}
	if len(partitions) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := c.db.Dialect.Rebind(upsertPartitionQuery)
	now := c.now().UnixMilli()
	for _, p := range partitions {
		valuesJSON, err := json.Marshal(p.Values)
		if err != nil {
			return fmt.Errorf("marshal partition values: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, t.Database, t.Name, string(valuesJSON), p.Location, now); err != nil {
			return fmt.Errorf("add partition %v: %w", p.Values, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (c *SQLCatalog) ListPartitions(ctx context.Context, databaseName, name string) ([]Partition, error) {
	t, err := c.GetTable(ctx, databaseName, name)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx,
		c.db.Dialect.Rebind(`SELECT partition_values, location FROM catalog_partitions WHERE database_name = ? AND table_name = ?`),
		t.Database,
		t.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	out := make([]Partition, 0)
	for rows.Next() {
		var valuesJSON string
		var p Partition
		if err := rows.Scan(&valuesJSON, &p.Location); err != nil {
			return nil, fmt.Errorf("list partitions: %w", err)
		}
		if err := json.Unmarshal([]byte(valuesJSON), &p.Values); err != nil {
			return nil, fmt.Errorf("decode partition values: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	sortPartitions(out)
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTable(row scanner) (Table, error) {
	var (
		t                                 Table
		columnsJSON, keysJSON, paramsJSON string
		createdAt, updatedAt              int64
	)
	if err := row.Scan(&t.Database, &t.Name, &t.Location, &t.Format, &t.Compression, &columnsJSON, &keysJSON, &paramsJSON, &createdAt, &updatedAt); err != nil {
		return Table{}, err
	}
	if err := json.Unmarshal([]byte(columnsJSON), &t.Columns); err != nil {
		return Table{}, fmt.Errorf("decode columns: %w", err)
	}
	if err := json.Unmarshal([]byte(keysJSON), &t.PartitionKeys); err != nil {
		return Table{}, fmt.Errorf("decode partition keys: %w", err)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &t.Parameters); err != nil {
		return Table{}, fmt.Errorf("decode parameters: %w", err)
	}
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	t.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return normalizeTable(t), nil
}
