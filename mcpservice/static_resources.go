package mcpservice

import (
	"context"

	"github.com/ggoodman/govdata-mcp/mcp"
)

// ResourceReader produces the text of a resource at read time.
type ResourceReader func(ctx context.Context) (string, error)

// StaticResource pairs a resource descriptor with its reader.
type StaticResource struct {
	Descriptor mcp.Resource
	Read       ResourceReader
}

// NewTextResource returns a resource whose contents never change.
func NewTextResource(desc mcp.Resource, text string) StaticResource {
	return StaticResource{
		Descriptor: desc,
		Read:       func(context.Context) (string, error) { return text, nil },
	}
}
