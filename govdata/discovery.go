package govdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ggoodman/govdata-mcp/sqllake"
)

// vectorMarker tags a column comment that describes an embedding column.
const vectorMarker = "[VECTOR "

// ListSchemasArgs is empty; list_schemas takes no arguments.
type ListSchemasArgs struct{}

type ListTablesArgs struct {
	Schema          string `json:"schema" jsonschema:"description=Schema name"`
	IncludeComments bool   `json:"include_comments,omitempty" jsonschema:"description=Include table comments,default=false"`
}

type DescribeTableArgs struct {
	Schema          string `json:"schema" jsonschema:"description=Schema name"`
	Table           string `json:"table" jsonschema:"description=Table name"`
	IncludeComments bool   `json:"include_comments,omitempty" jsonschema:"description=Include column comments,default=false"`
}

type SchemaList struct {
	Schemas []string `json:"schemas"`
}

type TableList struct {
	Schema string         `json:"schema"`
	Tables []*sqllake.Row `json:"tables"`
}

type TableDescription struct {
	Schema  string         `json:"schema"`
	Table   string         `json:"table"`
	Columns []*sqllake.Row `json:"columns"`
}

const listSchemasSQL = "SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA ORDER BY SCHEMA_NAME"

// ListSchemas returns every schema name.
func (s *Service) ListSchemas(ctx context.Context) (*SchemaList, error) {
	rows, err := s.conn.ExecuteMetadata(ctx, listSchemasSQL)
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}
	out := &SchemaList{Schemas: make([]string, 0, len(rows))}
	for _, r := range rows {
		out.Schemas = append(out.Schemas, r.String("SCHEMA_NAME"))
	}
	s.log.DebugContext(ctx, "govdata.schemas", slog.Int("count", len(out.Schemas)))
	return out, nil
}

func tablesSQL(schema string, withRemarks bool) string {
	cols := "TABLE_SCHEMA, TABLE_NAME, TABLE_TYPE"
	if withRemarks {
		cols += ", REMARKS"
	}
	return fmt.Sprintf("SELECT %s FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = %s ORDER BY TABLE_NAME",
		cols, sqllake.QuoteLiteral(schema))
}

func columnsSQL(schema, table, cols string) string {
	return fmt.Sprintf("SELECT %s FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = %s AND TABLE_NAME = %s ORDER BY ORDINAL_POSITION",
		cols, sqllake.QuoteLiteral(schema), sqllake.QuoteLiteral(table))
}

// ListTables lists the tables of one schema.
func (s *Service) ListTables(ctx context.Context, a ListTablesArgs) (*TableList, error) {
	rows, err := s.conn.ExecuteMetadata(ctx, tablesSQL(a.Schema, a.IncludeComments))
	if err != nil {
		return nil, fmt.Errorf("listing tables in schema %q: %w", a.Schema, err)
	}
	return &TableList{Schema: a.Schema, Tables: nonNilRows(rows)}, nil
}

// DescribeTable lists the columns of one table. With comments included,
// embedding columns are flagged with has_vector_metadata.
func (s *Service) DescribeTable(ctx context.Context, a DescribeTableArgs) (*TableDescription, error) {
	cols := "COLUMN_NAME, DATA_TYPE, IS_NULLABLE"
	if a.IncludeComments {
		cols += ", REMARKS"
	}
	rows, err := s.conn.ExecuteMetadata(ctx, columnsSQL(a.Schema, a.Table, cols))
	if err != nil {
		return nil, fmt.Errorf("describing table %s.%s: %w", a.Schema, a.Table, err)
	}
	if a.IncludeComments {
		for _, r := range rows {
			if hasVectorMetadata(r.String("REMARKS")) {
				r.Set("has_vector_metadata", true)
			}
		}
	}
	return &TableDescription{Schema: a.Schema, Table: a.Table, Columns: nonNilRows(rows)}, nil
}

func hasVectorMetadata(remarks string) bool {
	return strings.Contains(remarks, vectorMarker)
}

func nonNilRows(rows []*sqllake.Row) []*sqllake.Row {
	if rows == nil {
		return []*sqllake.Row{}
	}
	return rows
}

func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
