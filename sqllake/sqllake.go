// Package sqllake describes the SQL backend the gateway reads from and the
// few helpers needed to build statements for it safely.
//
// The backend is a data lake with an ANSI-style INFORMATION_SCHEMA. Statements
// carry no bind parameters, so every identifier and literal that originates
// from a caller goes through QuoteIdent or QuoteLiteral.
package sqllake

import (
	"context"
	"errors"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrClosed is returned by a backend after Close.
var ErrClosed = errors.New("sql backend closed")

// Result is a tabular statement result.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Conn is a connection to the SQL backend. Implementations must be safe for
// concurrent use.
type Conn interface {
	// Execute runs sql and returns column names and rows.
	Execute(ctx context.Context, sql string) (*Result, error)
	// ExecuteMetadata runs sql and returns each row keyed by column name.
	ExecuteMetadata(ctx context.Context, sql string) ([]*Row, error)
	Close() error
}

// Row is a result row keyed by column name. It marshals to a JSON object
// whose keys keep column order.
type Row struct {
	m *orderedmap.OrderedMap[string, any]
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{m: orderedmap.New[string, any]()}
}

// Set adds or replaces a column value. New keys are appended.
func (r *Row) Set(key string, v any) {
	r.m.Set(key, v)
}

// Get looks a column up by exact name first, then case-insensitively.
// Backends disagree on the case of INFORMATION_SCHEMA column names.
func (r *Row) Get(key string) (any, bool) {
	if v, ok := r.m.Get(key); ok {
		return v, true
	}
	for el := r.m.Oldest(); el != nil; el = el.Next() {
		if strings.EqualFold(el.Key, key) {
			return el.Value, true
		}
	}
	return nil, false
}

// String returns the column as a string. NULL and absent columns are "".
func (r *Row) String(key string) string {
	v, ok := r.Get(key)
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return stringify(v)
}

// Keys returns the column names in result order.
func (r *Row) Keys() []string {
	keys := make([]string, 0, r.m.Len())
	for el := r.m.Oldest(); el != nil; el = el.Next() {
		keys = append(keys, el.Key)
	}
	return keys
}

// Len returns the number of columns.
func (r *Row) Len() int { return r.m.Len() }

func (r *Row) MarshalJSON() ([]byte, error) {
	return r.m.MarshalJSON()
}

// RowsOf zips each row of res with its column names.
func RowsOf(res *Result) []*Row {
	if res == nil {
		return []*Row{}
	}
	out := make([]*Row, 0, len(res.Rows))
	for _, values := range res.Rows {
		row := NewRow()
		for i, col := range res.Columns {
			var v any
			if i < len(values) {
				v = values[i]
			}
			row.Set(col, v)
		}
		out = append(out, row)
	}
	return out
}

// QuoteIdent quotes name as a SQL identifier, doubling embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedName quotes and joins a schema and table name.
func QualifiedName(schema, table string) string {
	return QuoteIdent(schema) + "." + QuoteIdent(table)
}

// QuoteLiteral quotes s as a SQL string literal, doubling embedded quotes.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
