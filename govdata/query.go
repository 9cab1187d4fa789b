package govdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ggoodman/govdata-mcp/config"
	"github.com/ggoodman/govdata-mcp/sqllake"
)

type QueryDataArgs struct {
	SQL            string `json:"sql" jsonschema:"description=SQL query to execute"`
	Limit          int    `json:"limit,omitempty" jsonschema:"description=Maximum rows to return; 0 disables the limit,default=100,minimum=0"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"description=Query timeout in seconds,minimum=1,maximum=3600"`
}

type SampleTableArgs struct {
	Schema string `json:"schema" jsonschema:"description=Schema name"`
	Table  string `json:"table" jsonschema:"description=Table name"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Number of rows to sample,default=10,minimum=1"`
}

type QueryResult struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

type SampleResult struct {
	QueryResult
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

var limitClause = regexp.MustCompile(`(?i)\bLIMIT\b`)

// applyLimit appends a LIMIT clause when limit is positive and the
// statement has none.
func applyLimit(sql string, limit int) string {
	q := strings.TrimRight(strings.TrimSpace(sql), "; \t\n")
	if limit > 0 && !limitClause.MatchString(q) {
		q = q + " LIMIT " + strconv.Itoa(limit)
	}
	return q
}

// QueryData runs a caller-supplied statement under a deadline.
func (s *Service) QueryData(ctx context.Context, a QueryDataArgs) (*QueryResult, error) {
	if strings.TrimSpace(a.SQL) == "" {
		return nil, errors.New("sql must not be empty")
	}
	timeout := s.queryTimeout
	if a.TimeoutSeconds != 0 {
		timeout = config.ClampQueryTimeout(time.Duration(a.TimeoutSeconds) * time.Second)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := s.conn.Execute(ctx, applyLimit(a.SQL, a.Limit))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("query exceeded timeout of %s", timeout)
		}
		return nil, fmt.Errorf("executing query: %w", err)
	}
	out := toQueryResult(res)
	s.log.InfoContext(ctx, "govdata.query.ok",
		slog.Int("rows", out.RowCount),
		slog.Int("columns", len(out.Columns)),
	)
	return out, nil
}

// SampleTable returns the first rows of a table.
func (s *Service) SampleTable(ctx context.Context, a SampleTableArgs) (*SampleResult, error) {
	res, err := s.QueryData(ctx, QueryDataArgs{
		SQL:   "SELECT * FROM " + sqllake.QualifiedName(a.Schema, a.Table),
		Limit: a.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("sampling table %s.%s: %w", a.Schema, a.Table, err)
	}
	return &SampleResult{QueryResult: *res, Schema: a.Schema, Table: a.Table}, nil
}

func toQueryResult(res *sqllake.Result) *QueryResult {
	out := &QueryResult{Columns: []string{}, Rows: [][]any{}}
	if res == nil {
		return out
	}
	if res.Columns != nil {
		out.Columns = res.Columns
	}
	if res.Rows != nil {
		out.Rows = res.Rows
	}
	out.RowCount = len(out.Rows)
	return out
}
