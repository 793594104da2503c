package models

type Column struct {
	Name     string
	DataType string
	Nullable bool
}

// ForeignKey is a foreign key constraint. Columns of a composite key are
// joined with ", " unless the reader splits them per column.
type ForeignKey struct {
	ConstraintName string
	FromSchema     string
	FromTable      string
	FromColumn     string
	ToSchema       string
	ToTable        string
	ToColumn       string
}

type Table struct {
	Name        string
	Columns     []Column
	PrimaryKeys []string
	ForeignKeys []ForeignKey
}

// ERRelationship is an edge of the schema-wide ER diagram.
type ERRelationship struct {
	FromTable string
	ToTable   string
	Type      string // "||--o{", "||--||", etc.
}
