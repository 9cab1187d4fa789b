// Package sqllaketest provides a scripted in-memory sqllake.Conn for tests.
package sqllaketest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ggoodman/govdata-mcp/sqllake"
)

var _ sqllake.Conn = (*Fake)(nil)

type rule struct {
	contains string
	result   *sqllake.Result
	err      error
	block    bool
}

// Fake answers statements from rules matched by substring, first match
// wins. Unmatched statements fail.
type Fake struct {
	mu      sync.Mutex
	rules   []rule
	queries []string
	closed  bool
}

// New returns a Fake with no scripted results.
func New() *Fake { return &Fake{} }

// On answers statements containing substr with res.
func (f *Fake) On(substr string, res *sqllake.Result) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{contains: substr, result: res})
	return f
}

// Fail answers statements containing substr with err.
func (f *Fake) Fail(substr string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{contains: substr, err: err})
	return f
}

// Block makes statements containing substr wait until their context ends.
func (f *Fake) Block(substr string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{contains: substr, block: true})
	return f
}

// Queries returns every statement received, in order.
func (f *Fake) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.queries))
	copy(out, f.queries)
	return out
}

// LastQuery returns the most recent statement or "".
func (f *Fake) LastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return ""
	}
	return f.queries[len(f.queries)-1]
}

// Closed reports whether Close has been called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) Execute(ctx context.Context, sql string) (*sqllake.Result, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, sqllake.ErrClosed
	}
	f.queries = append(f.queries, sql)
	var matched *rule
	for i := range f.rules {
		if strings.Contains(sql, f.rules[i].contains) {
			matched = &f.rules[i]
			break
		}
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if matched == nil {
		return nil, fmt.Errorf("sqllaketest: no scripted result for %q", sql)
	}
	if matched.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if matched.err != nil {
		return nil, matched.err
	}
	return cloneResult(matched.result), nil
}

func (f *Fake) ExecuteMetadata(ctx context.Context, sql string) ([]*sqllake.Row, error) {
	res, err := f.Execute(ctx, sql)
	if err != nil {
		return nil, err
	}
	return sqllake.RowsOf(res), nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Table builds a result from column names and rows.
func Table(columns []string, rows ...[]any) *sqllake.Result {
	return &sqllake.Result{Columns: columns, Rows: rows}
}

func cloneResult(res *sqllake.Result) *sqllake.Result {
	if res == nil {
		return &sqllake.Result{Columns: []string{}, Rows: [][]any{}}
	}
	out := &sqllake.Result{
		Columns: append([]string{}, res.Columns...),
		Rows:    make([][]any, len(res.Rows)),
	}
	for i, r := range res.Rows {
		out.Rows[i] = append([]any{}, r...)
	}
	return out
}
