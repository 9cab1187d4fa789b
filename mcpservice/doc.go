// Package mcpservice holds the closed catalogs of tools, prompts and
// resources the gateway exposes, and the Dispatcher that looks names up in
// them.
//
// Tools are built from typed argument structs:
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema:"description=Text to echo"`
//	    Times   int    `json:"times,omitempty" jsonschema:"default=1"`
//	}
//	echo := mcpservice.NewTool("echo", func(ctx context.Context, a EchoArgs) (any, error) {
//	    return map[string]any{"echo": strings.Repeat(a.Message, a.Times)}, nil
//	}, mcpservice.WithToolDescription("Echo a message back to the caller"))
//
//	d, err := mcpservice.NewDispatcher(mcpservice.WithTools(echo))
//
// The input schema advertised in tools/list is reflected from the struct.
// Fields without omitempty are required; jsonschema default tags are filled
// in before the handler runs.
//
// Invoke never returns a Go error. A failing, panicking or unknown tool
// yields a result whose text is "Error: <message>" and whose isError flag is
// set, so the agent reads the failure as tool output.
package mcpservice
