package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/KilluaDB/topology/internal/models"
	"github.com/KilluaDB/topology/internal/repositories"
)

const (
	maxJunctionTableColumns = 6
	minJunctionTableFKs     = 2
)

// SchemaCatalog is the catalog access needed for the schema-wide ER diagram.
type SchemaCatalog interface {
	GetTables(ctx context.Context, schema string) ([]string, error)
	GetColumns(ctx context.Context, schema, table string) ([]models.Column, error)
	GetPrimaryKeys(ctx context.Context, schema, table string) ([]string, error)
	GetForeignKeys(ctx context.Context, schema, table string) ([]models.ForeignKey, error)
	GetUniqueConstraintsBatch(ctx context.Context, schema string, tableColumns []repositories.TableColumn) (map[string]bool, error)
}

type SchemaService struct {
	catalog SchemaCatalog
}

func NewSchemaService(catalog SchemaCatalog) *SchemaService {
	return &SchemaService{catalog: catalog}
}

// VisualizeSchema generates a Mermaid ER diagram of every base table in schema.
func (s *SchemaService) VisualizeSchema(ctx context.Context, schema string) (string, error) {
	if schema == "" {
		schema = DefaultSchema
	}

	tables, err := s.loadTables(ctx, schema)
	if err != nil {
		return "", fmt.Errorf("failed to parse tables: %w", err)
	}

	relationships, err := s.buildRelationships(ctx, schema, tables)
	if err != nil {
		return "", fmt.Errorf("failed to build relationships: %w", err)
	}

	return generateERDiagram(tables, relationships), nil
}

// ListTables returns the base table names of schema, for picking a focus table.
func (s *SchemaService) ListTables(ctx context.Context, schema string) ([]string, error) {
	if schema == "" {
		schema = DefaultSchema
	}
	tables, err := s.catalog.GetTables(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables of %s: %w", schema, err)
	}
	if tables == nil {
		tables = []string{}
	}
	return tables, nil
}

func (s *SchemaService) loadTables(ctx context.Context, schema string) ([]models.Table, error) {
	names, err := s.catalog.GetTables(ctx, schema)
	if err != nil {
		return nil, err
	}

	tables := make([]models.Table, 0, len(names))
	for _, name := range names {
		table := models.Table{Name: name}

		if table.Columns, err = s.catalog.GetColumns(ctx, schema, name); err != nil {
			return nil, fmt.Errorf("failed to get columns for %s: %w", name, err)
		}
		if table.PrimaryKeys, err = s.catalog.GetPrimaryKeys(ctx, schema, name); err != nil {
			return nil, fmt.Errorf("failed to get primary keys for %s: %w", name, err)
		}
		if table.ForeignKeys, err = s.catalog.GetForeignKeys(ctx, schema, name); err != nil {
			return nil, fmt.Errorf("failed to get foreign keys for %s: %w", name, err)
		}

		tables = append(tables, table)
	}
	return tables, nil
}

// buildRelationships turns foreign keys into ER edges. Junction tables become
// many-to-many edges between the tables they join; a foreign key column with
// a unique constraint is one-to-one, anything else one-to-many.
func (s *SchemaService) buildRelationships(ctx context.Context, schema string, tables []models.Table) ([]models.ERRelationship, error) {
	junctions := detectJunctionTables(tables)

	var toCheck []repositories.TableColumn
	for _, table := range tables {
		if junctions[table.Name] {
			continue
		}
		for _, fk := range table.ForeignKeys {
			toCheck = append(toCheck, repositories.TableColumn{Table: table.Name, Column: fk.FromColumn})
		}
	}

	unique, err := s.catalog.GetUniqueConstraintsBatch(ctx, schema, toCheck)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique constraints: %w", err)
	}

	var relationships []models.ERRelationship
	for _, table := range tables {
		if junctions[table.Name] {
			fks := table.ForeignKeys
			for i := 0; i < len(fks); i++ {
				for j := i + 1; j < len(fks); j++ {
					relationships = append(relationships, models.ERRelationship{
						FromTable: fks[i].ToTable,
						ToTable:   fks[j].ToTable,
						Type:      "}o--o{",
					})
				}
			}
			continue
		}

		for _, fk := range table.ForeignKeys {
			relType := "||--o{"
			if unique[table.Name+":"+fk.FromColumn] {
				relType = "||--||"
			}
			relationships = append(relationships, models.ERRelationship{
				FromTable: table.Name,
				ToTable:   fk.ToTable,
				Type:      relType,
			})
		}
	}
	return relationships, nil
}

// detectJunctionTables flags narrow tables whose primary key is made of at
// least two of their foreign key columns.
func detectJunctionTables(tables []models.Table) map[string]bool {
	junctions := make(map[string]bool)
	for _, table := range tables {
		if len(table.ForeignKeys) < minJunctionTableFKs ||
			len(table.PrimaryKeys) < minJunctionTableFKs ||
			len(table.Columns) > maxJunctionTableColumns {
			continue
		}

		allInPK := true
		for _, fk := range table.ForeignKeys {
			if !slices.Contains(table.PrimaryKeys, fk.FromColumn) {
				allInPK = false
				break
			}
		}
		fkColumnsInPK := 0
		for _, pk := range table.PrimaryKeys {
			if isForeignKey(table.ForeignKeys, pk) {
				fkColumnsInPK++
			}
		}
		if allInPK && fkColumnsInPK >= minJunctionTableFKs {
			junctions[table.Name] = true
		}
	}
	return junctions
}

func generateERDiagram(tables []models.Table, relationships []models.ERRelationship) string {
	var sb strings.Builder
	sb.WriteString("erDiagram\n")

	if len(relationships) > 0 {
		seen := make(map[string]bool)
		for _, rel := range relationships {
			key := rel.FromTable + ":" + rel.Type + ":" + rel.ToTable
			if seen[key] {
				continue
			}
			seen[key] = true

			// Mermaid requires a relationship label, an empty one hides it.
			sb.WriteString(fmt.Sprintf("    %s %s %s : \"\"\n",
				erEntityName(rel.FromTable), rel.Type, erEntityName(rel.ToTable)))
		}
		sb.WriteString("\n")
	}

	for _, table := range tables {
		sb.WriteString(fmt.Sprintf("    %s {\n", erEntityName(table.Name)))
		for _, col := range table.Columns {
			annotations := ""
			if slices.Contains(table.PrimaryKeys, col.Name) {
				annotations = " PK"
			}
			if isForeignKey(table.ForeignKeys, col.Name) {
				annotations += " FK"
			}
			sb.WriteString(fmt.Sprintf("        %s %s%s\n", simplifyDataType(col.DataType), col.Name, annotations))
		}
		sb.WriteString("    }\n\n")
	}

	return sb.String()
}

// erEntityName upper-cases a table name and strips characters erDiagram
// entity names cannot hold.
func erEntityName(name string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name))
}

func simplifyDataType(dataType string) string {
	dt := strings.ToLower(dataType)

	switch {
	case dt == "integer":
		return "int"
	case strings.HasPrefix(dt, "character varying"):
		return "varchar"
	case strings.HasPrefix(dt, "character"):
		return "char"
	case strings.HasPrefix(dt, "timestamp without time zone"):
		return "timestamp"
	case strings.HasPrefix(dt, "timestamp with time zone"):
		return "timestamptz"
	case strings.HasPrefix(dt, "time without time zone"):
		return "time"
	case strings.HasPrefix(dt, "numeric"):
		return "numeric"
	case strings.HasPrefix(dt, "decimal"):
		return "decimal"
	case dt == "double precision":
		return "double"
	case strings.HasPrefix(dt, "array"):
		return "array"
	case strings.Contains(dt, " "):
		// erDiagram attribute types cannot contain spaces.
		return strings.ReplaceAll(dt, " ", "_")
	default:
		return dt
	}
}

func isForeignKey(fks []models.ForeignKey, column string) bool {
	for _, fk := range fks {
		if fk.FromColumn == column {
			return true
		}
	}
	return false
}
