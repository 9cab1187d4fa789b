package govdata

import (
	"context"
	"fmt"
	"log/slog"
)

type SearchMetadataArgs struct {
	Query string `json:"query" jsonschema:"description=Search query"`
}

// MetadataCatalog is the full schema/table/column tree. The agent does the
// matching against Query itself.
type MetadataCatalog struct {
	Query   string           `json:"query"`
	Schemas []SchemaMetadata `json:"schemas"`
}

type SchemaMetadata struct {
	Name   string          `json:"name"`
	Tables []TableMetadata `json:"tables"`
}

type TableMetadata struct {
	Name    string           `json:"name"`
	Type    string           `json:"type"`
	Comment string           `json:"comment"`
	Columns []ColumnMetadata `json:"columns"`
}

type ColumnMetadata struct {
	Name              string `json:"name"`
	Type              string `json:"type"`
	Nullable          bool   `json:"nullable"`
	Comment           string `json:"comment"`
	HasVectorMetadata bool   `json:"has_vector_metadata,omitempty"`
}

// SearchMetadata walks every schema, table and column.
func (s *Service) SearchMetadata(ctx context.Context, a SearchMetadataArgs) (*MetadataCatalog, error) {
	schemas, err := s.ListSchemas(ctx)
	if err != nil {
		return nil, err
	}

	out := &MetadataCatalog{Query: a.Query, Schemas: make([]SchemaMetadata, 0, len(schemas.Schemas))}
	for _, schema := range schemas.Schemas {
		sm := SchemaMetadata{Name: schema, Tables: []TableMetadata{}}

		tables, err := s.conn.ExecuteMetadata(ctx, tablesSQL(schema, true))
		if err != nil {
			return nil, fmt.Errorf("listing tables in schema %q: %w", schema, err)
		}
		for _, t := range tables {
			tm := TableMetadata{
				Name:    t.String("TABLE_NAME"),
				Type:    t.String("TABLE_TYPE"),
				Comment: t.String("REMARKS"),
				Columns: []ColumnMetadata{},
			}

			cols, err := s.conn.ExecuteMetadata(ctx, columnsSQL(schema, tm.Name, "COLUMN_NAME, DATA_TYPE, IS_NULLABLE, REMARKS"))
			if err != nil {
				return nil, fmt.Errorf("listing columns of %s.%s: %w", schema, tm.Name, err)
			}
			for _, c := range cols {
				comment := c.String("REMARKS")
				tm.Columns = append(tm.Columns, ColumnMetadata{
					Name:              c.String("COLUMN_NAME"),
					Type:              c.String("DATA_TYPE"),
					Nullable:          c.String("IS_NULLABLE") == "YES",
					Comment:           comment,
					HasVectorMetadata: hasVectorMetadata(comment),
				})
			}
			sm.Tables = append(sm.Tables, tm)
		}
		out.Schemas = append(out.Schemas, sm)
	}

	s.log.InfoContext(ctx, "govdata.metadata.ok", slog.Int("schemas", len(out.Schemas)))
	return out, nil
}
