package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ggoodman/govdata-mcp/internal/logctx"
	"github.com/ggoodman/govdata-mcp/internal/telemetry"
	"github.com/ggoodman/govdata-mcp/mcp"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrUnknownPrompt    = errors.New("unknown prompt")
	ErrUnknownResource  = errors.New("unknown resource")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrDuplicateName    = errors.New("duplicate catalog entry")
)

// Dispatcher resolves tool, prompt and resource names against fixed lookup
// tables built at construction.
type Dispatcher struct {
	tools        map[string]StaticTool
	toolList     []mcp.Tool
	prompts      map[string]StaticPrompt
	promptList   []mcp.Prompt
	resources    map[string]StaticResource
	resourceList []mcp.Resource

	log     *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures a Dispatcher.
type Option func(*dispatcherConfig)

type dispatcherConfig struct {
	tools     []StaticTool
	prompts   []StaticPrompt
	resources []StaticResource
	log       *slog.Logger
	metrics   *telemetry.Metrics
}

// WithTools registers tools in listing order.
func WithTools(tools ...StaticTool) Option {
	return func(c *dispatcherConfig) { c.tools = append(c.tools, tools...) }
}

// WithPrompts registers prompts in listing order.
func WithPrompts(prompts ...StaticPrompt) Option {
	return func(c *dispatcherConfig) { c.prompts = append(c.prompts, prompts...) }
}

// WithResources registers resources in listing order.
func WithResources(resources ...StaticResource) Option {
	return func(c *dispatcherConfig) { c.resources = append(c.resources, resources...) }
}

// WithLogger sets the logger for tool call outcomes.
func WithLogger(log *slog.Logger) Option {
	return func(c *dispatcherConfig) { c.log = log }
}

// WithMetrics records tool call outcomes. Nil disables recording.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *dispatcherConfig) { c.metrics = m }
}

// NewDispatcher builds the lookup tables. Names must be unique within each
// catalog and every entry needs a handler.
func NewDispatcher(opts ...Option) (*Dispatcher, error) {
	cfg := dispatcherConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = slog.New(slog.DiscardHandler)
	}

	d := &Dispatcher{
		tools:     make(map[string]StaticTool, len(cfg.tools)),
		prompts:   make(map[string]StaticPrompt, len(cfg.prompts)),
		resources: make(map[string]StaticResource, len(cfg.resources)),
		log:       cfg.log,
		metrics:   cfg.metrics,
	}

	var errs []error
	for _, t := range cfg.tools {
		name := t.Descriptor.Name
		if _, dup := d.tools[name]; dup || name == "" || t.Handler == nil {
			errs = append(errs, fmt.Errorf("%w: tool %q", ErrDuplicateName, name))
			continue
		}
		d.tools[name] = t
		d.toolList = append(d.toolList, t.Descriptor)
	}
	for _, p := range cfg.prompts {
		name := p.Descriptor.Name
		if _, dup := d.prompts[name]; dup || name == "" || p.Handler == nil {
			errs = append(errs, fmt.Errorf("%w: prompt %q", ErrDuplicateName, name))
			continue
		}
		d.prompts[name] = p
		d.promptList = append(d.promptList, p.Descriptor)
	}
	for _, r := range cfg.resources {
		uri := r.Descriptor.URI
		if _, dup := d.resources[uri]; dup || uri == "" || r.Read == nil {
			errs = append(errs, fmt.Errorf("%w: resource %q", ErrDuplicateName, uri))
			continue
		}
		d.resources[uri] = r
		d.resourceList = append(d.resourceList, r.Descriptor)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return d, nil
}

// ListTools returns the tool descriptors in registration order.
func (d *Dispatcher) ListTools() []mcp.Tool {
	out := make([]mcp.Tool, len(d.toolList))
	copy(out, d.toolList)
	return out
}

// ListPrompts returns the prompt descriptors in registration order.
func (d *Dispatcher) ListPrompts() []mcp.Prompt {
	out := make([]mcp.Prompt, len(d.promptList))
	copy(out, d.promptList)
	return out
}

// ListResources returns the resource descriptors in registration order.
func (d *Dispatcher) ListResources() []mcp.Resource {
	out := make([]mcp.Resource, len(d.resourceList))
	copy(out, d.resourceList)
	return out
}

// Invoke runs the named tool. Every outcome, including an unknown name and a
// panicking handler, is reported inside the returned result.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args json.RawMessage) *mcp.CallToolResult {
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: name})

	t, ok := d.tools[name]
	if !ok {
		d.log.WarnContext(ctx, "tool.call.fail", slog.String("err", fmt.Errorf("%w: %s", ErrUnknownTool, name).Error()))
		d.metrics.RecordToolCall(ctx, "unknown", false)
		return errorText("Unknown tool: " + name)
	}

	v, err := runTool(ctx, t.Handler, args)
	if err == nil {
		var text string
		text, err = encodeToolResult(v)
		if err == nil {
			d.log.InfoContext(ctx, "tool.call.ok")
			d.metrics.RecordToolCall(ctx, name, true)
			return TextResult(text)
		}
	}

	d.log.WarnContext(ctx, "tool.call.fail", slog.String("err", err.Error()))
	d.metrics.RecordToolCall(ctx, name, false)
	return errorResult(err)
}

func runTool(ctx context.Context, h ToolHandler, args json.RawMessage) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return h(ctx, args)
}

// GetPrompt renders the named prompt.
func (d *Dispatcher) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	p, ok := d.prompts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrompt, name)
	}
	if missing := missingPromptArguments(p.Descriptor, args); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required argument: %s", ErrInvalidArguments, strings.Join(missing, ", "))
	}
	return p.Handler(ctx, args)
}

// ReadResource reads the resource identified by uri.
func (d *Dispatcher) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	r, ok := d.resources[uri]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, uri)
	}
	text, err := r.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{{
			URI:      uri,
			MimeType: r.Descriptor.MimeType,
			Text:     text,
		}},
	}, nil
}

// TextResult wraps s as a successful tool result.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.TextContent(s)}}
}

func errorResult(err error) *mcp.CallToolResult {
	return errorText(err.Error())
}

func errorText(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{mcp.TextContent("Error: " + msg)},
		IsError: true,
	}
}

// encodeToolResult renders v as two-space indented JSON without HTML
// escaping.
func encodeToolResult(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encoding tool result: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
