// Package govdata implements the data lake tools, prompts and resources the
// gateway exposes to agents.
package govdata

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ggoodman/govdata-mcp/config"
	"github.com/ggoodman/govdata-mcp/mcpservice"
	"github.com/ggoodman/govdata-mcp/sqllake"
)

// Service answers tool calls from the SQL backend.
type Service struct {
	conn         sqllake.Conn
	log          *slog.Logger
	queryTimeout time.Duration
	catalog      *Catalog
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for tool diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithQueryTimeout sets the deadline applied to query_data when the caller
// does not pass timeout_seconds.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Service) { s.queryTimeout = config.ClampQueryTimeout(d) }
}

// New builds a Service over conn. The embedded catalog is parsed here so a
// broken catalog fails at startup.
func New(conn sqllake.Conn, opts ...Option) (*Service, error) {
	cat, err := LoadCatalog()
	if err != nil {
		return nil, err
	}
	s := &Service{
		conn:         conn,
		queryTimeout: config.ClampQueryTimeout(300 * time.Second),
		catalog:      cat,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// Instructions is the server guidance returned from initialize.
func (s *Service) Instructions() string {
	return strings.TrimSpace(s.catalog.Instructions)
}

// Tools returns the fixed tool catalog in listing order.
func (s *Service) Tools() []mcpservice.StaticTool {
	d := s.catalog.toolDescription
	return []mcpservice.StaticTool{
		mcpservice.NewTool("list_schemas", func(ctx context.Context, _ ListSchemasArgs) (any, error) {
			return s.ListSchemas(ctx)
		}, mcpservice.WithToolDescription(d("list_schemas"))),
		mcpservice.NewTool("list_tables", func(ctx context.Context, a ListTablesArgs) (any, error) {
			return s.ListTables(ctx, a)
		}, mcpservice.WithToolDescription(d("list_tables"))),
		mcpservice.NewTool("describe_table", func(ctx context.Context, a DescribeTableArgs) (any, error) {
			return s.DescribeTable(ctx, a)
		}, mcpservice.WithToolDescription(d("describe_table"))),
		mcpservice.NewTool("query_data", func(ctx context.Context, a QueryDataArgs) (any, error) {
			return s.QueryData(ctx, a)
		}, mcpservice.WithToolDescription(d("query_data"))),
		mcpservice.NewTool("sample_table", func(ctx context.Context, a SampleTableArgs) (any, error) {
			return s.SampleTable(ctx, a)
		}, mcpservice.WithToolDescription(d("sample_table"))),
		mcpservice.NewTool("profile_table", func(ctx context.Context, a ProfileTableArgs) (any, error) {
			return s.ProfileTable(ctx, a)
		}, mcpservice.WithToolDescription(d("profile_table"))),
		mcpservice.NewTool("search_metadata", func(ctx context.Context, a SearchMetadataArgs) (any, error) {
			return s.SearchMetadata(ctx, a)
		}, mcpservice.WithToolDescription(d("search_metadata"))),
		mcpservice.NewTool("semantic_search", func(ctx context.Context, a SemanticSearchArgs) (any, error) {
			return s.SemanticSearch(ctx, a)
		}, mcpservice.WithToolDescription(d("semantic_search"))),
		mcpservice.NewTool("list_vector_sources", func(ctx context.Context, a VectorSourcesArgs) (any, error) {
			return s.ListVectorSources(ctx, a)
		}, mcpservice.WithToolDescription(d("list_vector_sources"))),
	}
}

// Dispatcher assembles the tools, prompts and resources into one dispatcher.
func (s *Service) Dispatcher(opts ...mcpservice.Option) (*mcpservice.Dispatcher, error) {
	prompts, err := s.Prompts()
	if err != nil {
		return nil, err
	}
	resources, err := s.Resources()
	if err != nil {
		return nil, err
	}
	opts = append([]mcpservice.Option{
		mcpservice.WithTools(s.Tools()...),
		mcpservice.WithPrompts(prompts...),
		mcpservice.WithResources(resources...),
	}, opts...)
	return mcpservice.NewDispatcher(opts...)
}
