package govdata

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/ggoodman/govdata-mcp/sqllake"
)

// Embedding settings assumed when a vector comment omits them.
const (
	DefaultVectorDimension = 1536
	DefaultVectorProvider  = "openai"
	DefaultVectorModel     = "text-embedding-ada-002"
)

type SemanticSearchArgs struct {
	Schema            string  `json:"schema" jsonschema:"description=Schema name"`
	Table             string  `json:"table" jsonschema:"description=Table containing the vector column"`
	QueryText         string  `json:"query_text" jsonschema:"description=Text to search for"`
	Limit             int     `json:"limit,omitempty" jsonschema:"description=Maximum number of results,default=10,minimum=1"`
	Threshold         float64 `json:"threshold,omitempty" jsonschema:"description=Minimum cosine similarity between 0 and 1,default=0.7,minimum=0,maximum=1"`
	SourceTableFilter string  `json:"source_table_filter,omitempty" jsonschema:"description=Restrict multi-source vector tables to one source table"`
	IncludeSource     bool    `json:"include_source,omitempty" jsonschema:"description=Join to the source table for original content,default=false"`
}

type VectorSourcesArgs struct {
	Schema string `json:"schema" jsonschema:"description=Schema name"`
	Table  string `json:"table" jsonschema:"description=Multi-source vector table"`
}

// VectorColumn is an embedding column and the model that produced it.
type VectorColumn struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

type SearchResult struct {
	Schema        string        `json:"schema"`
	Table         string        `json:"table"`
	Query         string        `json:"query"`
	VectorColumn  *VectorColumn `json:"vector_column,omitempty"`
	IncludeSource bool          `json:"include_source"`
	Columns       []string      `json:"columns"`
	Rows          [][]any       `json:"rows"`
	Count         int           `json:"count"`
	Error         string        `json:"error,omitempty"`
}

type VectorSources struct {
	Schema  string         `json:"schema"`
	Table   string         `json:"table"`
	Sources []*sqllake.Row `json:"sources"`
}

var (
	vectorComment = regexp.MustCompile(`\[VECTOR\s+([^\]]*)\]`)
	vectorField   = regexp.MustCompile(`(\w+)\s*=\s*("[^"]*"|'[^']*'|[^\s,]+)`)
)

// ParseVectorComment extracts embedding settings from a column comment of
// the form "[VECTOR dimension=1536 provider=openai model=...]". Missing keys
// take the package defaults. ok is false when the comment has no marker.
func ParseVectorComment(remarks string) (vc VectorColumn, ok bool, err error) {
	m := vectorComment.FindStringSubmatch(remarks)
	if m == nil {
		return VectorColumn{}, false, nil
	}
	vc = VectorColumn{
		Dimension: DefaultVectorDimension,
		Provider:  DefaultVectorProvider,
		Model:     DefaultVectorModel,
	}
	for _, f := range vectorField.FindAllStringSubmatch(m[1], -1) {
		val := strings.Trim(f[2], `"'`)
		switch strings.ToLower(f[1]) {
		case "dimension", "dim":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return VectorColumn{}, true, fmt.Errorf("invalid vector dimension %q", val)
			}
			vc.Dimension = n
		case "provider":
			vc.Provider = val
		case "model":
			vc.Model = val
		}
	}
	return vc, true, nil
}

// findVectorColumn returns the first column whose comment carries vector
// metadata.
func (s *Service) findVectorColumn(ctx context.Context, schema, table string) (*VectorColumn, error) {
	rows, err := s.conn.ExecuteMetadata(ctx, columnsSQL(schema, table, "COLUMN_NAME, REMARKS"))
	if err != nil {
		return nil, fmt.Errorf("reading column metadata of %s.%s: %w", schema, table, err)
	}
	for _, r := range rows {
		vc, ok, err := ParseVectorComment(r.String("REMARKS"))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", r.String("COLUMN_NAME"), err)
		}
		if ok {
			vc.Name = r.String("COLUMN_NAME")
			return &vc, nil
		}
	}
	return nil, fmt.Errorf("table %s.%s has no column with [VECTOR ...] metadata", schema, table)
}

func semanticSearchSQL(a SemanticSearchArgs, vc *VectorColumn) string {
	embed := fmt.Sprintf("EMBED(%s, %d, %s, %s)",
		sqllake.QuoteLiteral(a.QueryText), vc.Dimension,
		sqllake.QuoteLiteral(vc.Provider), sqllake.QuoteLiteral(vc.Model))
	similarity := fmt.Sprintf("COSINE_SIMILARITY(%s, %s)", sqllake.QuoteIdent(vc.Name), embed)

	var b strings.Builder
	fmt.Fprintf(&b, `SELECT *, %s AS "similarity" FROM %s WHERE %s > %s`,
		similarity, sqllake.QualifiedName(a.Schema, a.Table), similarity,
		strconv.FormatFloat(a.Threshold, 'f', -1, 64))
	if a.SourceTableFilter != "" {
		fmt.Fprintf(&b, ` AND "source_table" = %s`, sqllake.QuoteLiteral(a.SourceTableFilter))
	}
	b.WriteString(` ORDER BY "similarity" DESC`)
	if a.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", a.Limit)
	}
	return b.String()
}

// SemanticSearch ranks rows by cosine similarity to an embedding of the
// query text. A table without a vector column is an error. A failing search
// statement yields an empty result carrying the error text.
func (s *Service) SemanticSearch(ctx context.Context, a SemanticSearchArgs) (*SearchResult, error) {
	if strings.TrimSpace(a.QueryText) == "" {
		return nil, fmt.Errorf("query_text must not be empty")
	}
	vc, err := s.findVectorColumn(ctx, a.Schema, a.Table)
	if err != nil {
		return nil, err
	}

	out := &SearchResult{
		Schema:        a.Schema,
		Table:         a.Table,
		Query:         a.QueryText,
		VectorColumn:  vc,
		IncludeSource: a.IncludeSource,
		Columns:       []string{},
		Rows:          [][]any{},
	}
	res, err := s.conn.Execute(ctx, semanticSearchSQL(a, vc))
	if err != nil {
		s.log.WarnContext(ctx, "govdata.semantic_search.fail", slog.String("err", err.Error()))
		out.Error = err.Error()
		return out, nil
	}
	qr := toQueryResult(res)
	out.Columns, out.Rows, out.Count = qr.Columns, qr.Rows, qr.RowCount
	return out, nil
}

// ListVectorSources counts vectors per source table of a multi-source
// vector table.
func (s *Service) ListVectorSources(ctx context.Context, a VectorSourcesArgs) (*VectorSources, error) {
	sql := fmt.Sprintf(`SELECT "source_table", COUNT(*) AS "vector_count" FROM %s GROUP BY "source_table" ORDER BY "vector_count" DESC`,
		sqllake.QualifiedName(a.Schema, a.Table))
	rows, err := s.conn.ExecuteMetadata(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("listing vector sources of %s.%s: %w", a.Schema, a.Table, err)
	}
	return &VectorSources{Schema: a.Schema, Table: a.Table, Sources: nonNilRows(rows)}, nil
}
