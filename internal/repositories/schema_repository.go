package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/KilluaDB/topology/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SchemaRepository struct {
	pool *pgxpool.Pool
}

func NewSchemaRepository(pool *pgxpool.Pool) *SchemaRepository {
	return &SchemaRepository{pool: pool}
}

// foreignKeySelect returns one row per constraint. Composite keys have their
// columns joined with ", " in key order.
const foreignKeySelect = `
	SELECT
		c.conname,
		ns.nspname,
		cl.relname,
		string_agg(a.attname, ', ' ORDER BY k.ord),
		fns.nspname,
		fcl.relname,
		string_agg(fa.attname, ', ' ORDER BY k.ord)
	FROM pg_constraint c
	JOIN pg_class cl ON cl.oid = c.conrelid
	JOIN pg_namespace ns ON ns.oid = cl.relnamespace
	JOIN pg_class fcl ON fcl.oid = c.confrelid
	JOIN pg_namespace fns ON fns.oid = fcl.relnamespace
	CROSS JOIN LATERAL unnest(c.conkey, c.confkey) WITH ORDINALITY AS k(attnum, fattnum, ord)
	JOIN pg_attribute a ON a.attrelid = c.conrelid AND a.attnum = k.attnum
	JOIN pg_attribute fa ON fa.attrelid = c.confrelid AND fa.attnum = k.fattnum
	WHERE c.contype = 'f'
		AND %s
	GROUP BY c.conname, ns.nspname, cl.relname, fns.nspname, fcl.relname
	ORDER BY c.conname
`

// TableExists reports whether schema.table is a table, partitioned table or view.
func (r *SchemaRepository) TableExists(ctx context.Context, schema, table string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM pg_class cl
			JOIN pg_namespace ns ON ns.oid = cl.relnamespace
			WHERE ns.nspname = $1
				AND cl.relname = $2
				AND cl.relkind IN ('r', 'p', 'v', 'm', 'f')
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, schema, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table %s.%s: %w", schema, table, err)
	}
	return exists, nil
}

// GetOutgoingForeignKeys returns the foreign keys declared on schema.table.
func (r *SchemaRepository) GetOutgoingForeignKeys(ctx context.Context, schema, table string) ([]models.ForeignKey, error) {
	query := fmt.Sprintf(foreignKeySelect, "ns.nspname = $1 AND cl.relname = $2")
	return r.queryForeignKeys(ctx, query, schema, table)
}

// GetIncomingForeignKeys returns the foreign keys of other tables that
// reference schema.table.
func (r *SchemaRepository) GetIncomingForeignKeys(ctx context.Context, schema, table string) ([]models.ForeignKey, error) {
	query := fmt.Sprintf(foreignKeySelect, "fns.nspname = $1 AND fcl.relname = $2")
	return r.queryForeignKeys(ctx, query, schema, table)
}

// CountRelationships returns how many foreign keys touch schema.table in
// either direction. A self reference counts once.
func (r *SchemaRepository) CountRelationships(ctx context.Context, schema, table string) (int, error) {
	query := `
		SELECT count(*)
		FROM pg_constraint c
		JOIN pg_class cl ON cl.oid = c.conrelid
		JOIN pg_namespace ns ON ns.oid = cl.relnamespace
		JOIN pg_class fcl ON fcl.oid = c.confrelid
		JOIN pg_namespace fns ON fns.oid = fcl.relnamespace
		WHERE c.contype = 'f'
			AND ((ns.nspname = $1 AND cl.relname = $2)
				OR (fns.nspname = $1 AND fcl.relname = $2))
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, schema, table).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count relationships of %s.%s: %w", schema, table, err)
	}
	return count, nil
}

func (r *SchemaRepository) queryForeignKeys(ctx context.Context, query string, args ...any) ([]models.ForeignKey, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	fks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ForeignKey, error) {
		var fk models.ForeignKey
		err := row.Scan(
			&fk.ConstraintName,
			&fk.FromSchema,
			&fk.FromTable,
			&fk.FromColumn,
			&fk.ToSchema,
			&fk.ToTable,
			&fk.ToColumn,
		)
		return fk, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys: %w", err)
	}
	return fks, nil
}

// GetTables returns all table names in the specified schema
func (r *SchemaRepository) GetTables(ctx context.Context, schema string) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := r.pool.Query(ctx, query, schema)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// GetColumns returns all columns for a specific table in a schema
func (r *SchemaRepository) GetColumns(ctx context.Context, schema, table string) ([]models.Column, error) {
	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := r.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []models.Column
	for rows.Next() {
		var col models.Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.DataType, &nullable); err != nil {
			return nil, err
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return columns, nil
}

// GetPrimaryKeys returns all primary key column names for a specific table
func (r *SchemaRepository) GetPrimaryKeys(ctx context.Context, schema, table string) ([]string, error) {
	query := `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2
		ORDER BY kcu.ordinal_position
	`

	rows, err := r.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// GetForeignKeys returns one entry per column of every foreign key declared
// on a table, for the ER diagram's FK annotations.
func (r *SchemaRepository) GetForeignKeys(ctx context.Context, schema, table string) ([]models.ForeignKey, error) {
	fks, err := r.GetOutgoingForeignKeys(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	var out []models.ForeignKey
	for _, fk := range fks {
		from := strings.Split(fk.FromColumn, ", ")
		to := strings.Split(fk.ToColumn, ", ")
		for i := range from {
			col := fk
			col.FromColumn = from[i]
			if i < len(to) {
				col.ToColumn = to[i]
			}
			out = append(out, col)
		}
	}
	return out, nil
}

// TableColumn represents a table and column pair
type TableColumn struct {
	Table  string
	Column string
}

// GetUniqueConstraintsBatch returns a map of table:column pairs that have unique constraints
func (r *SchemaRepository) GetUniqueConstraintsBatch(ctx context.Context, schema string, tableColumns []TableColumn) (map[string]bool, error) {
	if len(tableColumns) == 0 {
		return make(map[string]bool), nil
	}

	var conditions []string
	var args []any
	argNum := 1

	for _, tc := range tableColumns {
		conditions = append(conditions, fmt.Sprintf("(tc.table_name = $%d AND kcu.column_name = $%d)", argNum, argNum+1))
		args = append(args, tc.Table, tc.Column)
		argNum += 2
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'UNIQUE'
			AND tc.table_schema = $%d
			AND (%s)
	`, argNum, strings.Join(conditions, " OR "))
	args = append(args, schema)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique constraints: %w", err)
	}
	defer rows.Close()

	uniqueMap := make(map[string]bool)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("failed to scan unique constraint: %w", err)
		}
		uniqueMap[table+":"+column] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unique constraints: %w", err)
	}

	return uniqueMap, nil
}
