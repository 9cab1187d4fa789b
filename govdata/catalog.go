package govdata

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ggoodman/govdata-mcp/mcp"
	"github.com/ggoodman/govdata-mcp/mcpservice"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Catalog is the static descriptive metadata: tool descriptions, prompt
// templates and resources.
type Catalog struct {
	Instructions string            `yaml:"instructions"`
	Tools        map[string]string `yaml:"tools"`
	Prompts      []PromptSpec      `yaml:"prompts"`
	Resources    []ResourceSpec    `yaml:"resources"`
}

type PromptSpec struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Arguments   []ArgumentSpec `yaml:"arguments"`
	Template    string         `yaml:"template"`
}

type ArgumentSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
}

// ResourceSpec is either a fixed text resource or, when Source is set, a
// resource generated from the backend at read time.
type ResourceSpec struct {
	URI         string `yaml:"uri"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	MimeType    string `yaml:"mimeType"`
	Text        string `yaml:"text"`
	Source      string `yaml:"source"`
}

// LoadCatalog parses the embedded catalog.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog parses catalog YAML. Unknown fields are rejected.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return &c, nil
}

func (c *Catalog) toolDescription(name string) string {
	return c.Tools[name]
}

// Prompts builds the prompt catalog.
func (s *Service) Prompts() ([]mcpservice.StaticPrompt, error) {
	out := make([]mcpservice.StaticPrompt, 0, len(s.catalog.Prompts))
	for _, ps := range s.catalog.Prompts {
		desc := mcp.Prompt{Name: ps.Name, Description: ps.Description}
		for _, a := range ps.Arguments {
			desc.Arguments = append(desc.Arguments, mcp.PromptArgument{
				Name:        a.Name,
				Description: a.Description,
				Required:    a.Required,
			})
		}
		p, err := mcpservice.NewTemplatePrompt(desc, ps.Template)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Resources builds the resource catalog.
func (s *Service) Resources() ([]mcpservice.StaticResource, error) {
	out := make([]mcpservice.StaticResource, 0, len(s.catalog.Resources))
	for _, rs := range s.catalog.Resources {
		desc := mcp.Resource{
			URI:         rs.URI,
			Name:        rs.Name,
			Description: rs.Description,
			MimeType:    rs.MimeType,
		}
		switch rs.Source {
		case "":
			out = append(out, mcpservice.NewTextResource(desc, rs.Text))
		case "schemas":
			out = append(out, mcpservice.StaticResource{Descriptor: desc, Read: s.readSchemaCatalog})
		default:
			return nil, fmt.Errorf("resource %s: unknown source %q", rs.URI, rs.Source)
		}
	}
	return out, nil
}

func (s *Service) readSchemaCatalog(ctx context.Context) (string, error) {
	schemas, err := s.ListSchemas(ctx)
	if err != nil {
		return "", err
	}
	return encodeJSON(schemas)
}
