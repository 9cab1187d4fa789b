package govdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/ggoodman/govdata-mcp/sqllake"
)

type ProfileTableArgs struct {
	Schema  string   `json:"schema" jsonschema:"description=Schema name"`
	Table   string   `json:"table" jsonschema:"description=Table name"`
	Columns []string `json:"columns,omitempty" jsonschema:"description=Columns to profile; empty means all"`
}

type ColumnProfile struct {
	Name           string `json:"name"`
	DistinctCount  any    `json:"distinct_count"`
	NullPercentage any    `json:"null_percentage"`
	Min            any    `json:"min"`
	Max            any    `json:"max"`
}

type TableProfile struct {
	Schema   string          `json:"schema"`
	Table    string          `json:"table"`
	RowCount any             `json:"row_count"`
	Columns  []ColumnProfile `json:"columns"`
}

// statsPerColumn is the number of select items profileSQL emits per column.
const statsPerColumn = 4

func profileSQL(schema, table string, columns []string) string {
	parts := []string{`COUNT(*) AS "row_count"`}
	for _, col := range columns {
		c := sqllake.QuoteIdent(col)
		parts = append(parts,
			fmt.Sprintf("COUNT(DISTINCT %s) AS %s", c, sqllake.QuoteIdent(col+"_distinct")),
			fmt.Sprintf("SUM(CASE WHEN %s IS NULL THEN 1 ELSE 0 END) * 100.0 / NULLIF(COUNT(*), 0) AS %s", c, sqllake.QuoteIdent(col+"_null_pct")),
			fmt.Sprintf("CAST(MIN(%s) AS VARCHAR) AS %s", c, sqllake.QuoteIdent(col+"_min")),
			fmt.Sprintf("CAST(MAX(%s) AS VARCHAR) AS %s", c, sqllake.QuoteIdent(col+"_max")),
		)
	}
	return "SELECT " + strings.Join(parts, ", ") + " FROM " + sqllake.QualifiedName(schema, table)
}

// ProfileTable computes row count and per-column distinct count, null
// percentage and min/max in one aggregate statement. With no columns given,
// every column of the table is profiled.
func (s *Service) ProfileTable(ctx context.Context, a ProfileTableArgs) (*TableProfile, error) {
	columns := a.Columns
	if len(columns) == 0 {
		rows, err := s.conn.ExecuteMetadata(ctx, columnsSQL(a.Schema, a.Table, "COLUMN_NAME"))
		if err != nil {
			return nil, fmt.Errorf("listing columns of %s.%s: %w", a.Schema, a.Table, err)
		}
		for _, r := range rows {
			columns = append(columns, r.String("COLUMN_NAME"))
		}
		if len(columns) == 0 {
			return nil, fmt.Errorf("table %s.%s not found or has no columns", a.Schema, a.Table)
		}
	}

	res, err := s.conn.Execute(ctx, profileSQL(a.Schema, a.Table, columns))
	if err != nil {
		return nil, fmt.Errorf("profiling table %s.%s: %w", a.Schema, a.Table, err)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("no data returned for table %s.%s", a.Schema, a.Table)
	}
	row := res.Rows[0]
	if want := 1 + statsPerColumn*len(columns); len(row) < want {
		return nil, fmt.Errorf("profile of %s.%s returned %d values, expected %d", a.Schema, a.Table, len(row), want)
	}

	out := &TableProfile{
		Schema:   a.Schema,
		Table:    a.Table,
		RowCount: row[0],
		Columns:  make([]ColumnProfile, 0, len(columns)),
	}
	for i, col := range columns {
		idx := 1 + i*statsPerColumn
		out.Columns = append(out.Columns, ColumnProfile{
			Name:           col,
			DistinctCount:  row[idx],
			NullPercentage: row[idx+1],
			Min:            row[idx+2],
			Max:            row[idx+3],
		})
	}
	return out, nil
}
