package mcpservice

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/ggoodman/govdata-mcp/mcp"
)

// PromptHandler renders a prompt from its string arguments. Required
// arguments have already been checked by the dispatcher.
type PromptHandler func(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error)

// StaticPrompt pairs a prompt descriptor with a handler that can materialize it.
type StaticPrompt struct {
	Descriptor mcp.Prompt
	Handler    PromptHandler
}

// NewTemplatePrompt builds a prompt whose single user message is a
// text/template rendered over the argument map. Absent optional arguments
// render as empty strings.
func NewTemplatePrompt(desc mcp.Prompt, text string) (StaticPrompt, error) {
	tmpl, err := template.New(desc.Name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return StaticPrompt{}, fmt.Errorf("parsing prompt %q: %w", desc.Name, err)
	}

	handler := func(_ context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
		data := make(map[string]string, len(desc.Arguments))
		for _, a := range desc.Arguments {
			data[a.Name] = args[a.Name]
		}
		var b strings.Builder
		if err := tmpl.Execute(&b, data); err != nil {
			return nil, fmt.Errorf("rendering prompt %q: %w", desc.Name, err)
		}
		return &mcp.GetPromptResult{
			Description: desc.Description,
			Messages: []mcp.PromptMessage{{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent(strings.TrimSpace(b.String())),
			}},
		}, nil
	}

	return StaticPrompt{Descriptor: desc, Handler: handler}, nil
}

func missingPromptArguments(desc mcp.Prompt, args map[string]string) []string {
	var missing []string
	for _, a := range desc.Arguments {
		if a.Required && strings.TrimSpace(args[a.Name]) == "" {
			missing = append(missing, a.Name)
		}
	}
	return missing
}
