package mcpservice

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/ggoodman/govdata-mcp/mcp"
	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// ToolHandler runs a tool against its raw argument object. The returned
// value is serialized into the tool's single text payload.
type ToolHandler func(ctx context.Context, args json.RawMessage) (any, error)

// StaticTool pairs a tool descriptor with the handler that implements it.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description string
	strict      bool
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolStrictArguments makes decoding reject argument names the tool does
// not declare. By default unknown arguments are ignored.
func WithToolStrictArguments() ToolOption {
	return func(c *toolConfig) { c.strict = true }
}

// NewTool constructs a StaticTool from a typed argument struct A. It:
//   - Reflects a JSON Schema from A using invopop/jsonschema
//   - Down-converts it to MCP's simplified ToolInputSchema, keeping defaults
//   - Decodes each call's argument object into A, filling declared defaults
//     and rejecting calls that omit a required argument
//
// Decoding is weakly typed so that "10" satisfies an int field; agents are
// not always careful with JSON types.
func NewTool[A any](name string, fn func(ctx context.Context, args A) (any, error), opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	input := reflectToMCPInputSchema[A]()
	desc := mcp.Tool{
		Name:        name,
		Description: cfg.description,
		InputSchema: input,
	}

	handler := func(ctx context.Context, raw json.RawMessage) (any, error) {
		a, err := decodeArguments[A](raw, input, cfg.strict)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

func decodeArguments[A any](raw json.RawMessage, schema mcp.ToolInputSchema, strict bool) (A, error) {
	var a A

	bag := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &bag); err != nil {
			return a, fmt.Errorf("%w: arguments must be an object: %v", ErrInvalidArguments, err)
		}
	}
	for _, name := range schema.Required {
		if v, ok := bag[name]; !ok || v == nil {
			return a, fmt.Errorf("%w: missing required argument: %s", ErrInvalidArguments, name)
		}
	}
	for name, prop := range schema.Properties {
		if prop.Default == nil {
			continue
		}
		if v, ok := bag[name]; !ok || v == nil {
			bag[name] = prop.Default
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      strict,
		Result:           &a,
	})
	if err != nil {
		return a, fmt.Errorf("building argument decoder: %w", err)
	}
	if err := dec.Decode(bag); err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return a, nil
}

// reflectToMCPInputSchema reflects a Go type A into a mcp.ToolInputSchema.
// Unnamed types, such as struct{}, have no definition for the reflector to
// expand and yield the empty object schema.
func reflectToMCPInputSchema[A any]() mcp.ToolInputSchema {
	if reflect.TypeFor[A]().Name() == "" {
		return emptyInputSchema()
	}
	r := &jsonschema.Reflector{
		DoNotReference: true, // inline defs
		ExpandedStruct: true, // put struct at root
	}
	s := r.Reflect(new(A))

	// Only object schemas map cleanly to MCP ToolInputSchema.
	if s == nil || s.Type != "object" {
		return emptyInputSchema()
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toMCPProperty(el.Value)
		}
	}
	required := []string{}
	required = append(required, s.Required...)

	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func emptyInputSchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]mcp.SchemaProperty{},
		Required:   []string{},
	}
}

// toMCPProperty recursively maps a jsonschema.Schema to the simplified MCP SchemaProperty.
func toMCPProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
		Default:     s.Default,
		Minimum:     numberPtr(s.Minimum),
		Maximum:     numberPtr(s.Maximum),
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toMCPProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toMCPProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}

func numberPtr(n json.Number) *float64 {
	if n == "" {
		return nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return nil
	}
	return &f
}
