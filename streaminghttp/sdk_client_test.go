package streaminghttp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ggoodman/govdata-mcp/auth"
	"github.com/ggoodman/govdata-mcp/internal/engine"
	"github.com/ggoodman/govdata-mcp/streaminghttp"
)

// apiKeyRT adds the API key header to every request the SDK client makes.
type apiKeyRT struct {
	key  string
	base http.RoundTripper
}

func (rt apiKeyRT) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("X-API-Key", rt.key)
	return rt.base.RoundTrip(r)
}

func newGate(keys ...string) *auth.Gate {
	return auth.NewGate(
		auth.NewCredentialStore(keys, auth.LocalSecret{}),
		auth.NewTokenVerifier(auth.VerifierConfig{}),
	)
}

func TestSDKClientOverPersistentStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, err := streaminghttp.New(newEngine(t, nil), newGate("sdk-key"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(h)
	defer srv.Close()

	for _, path := range []string{streaminghttp.MessagesPath, streaminghttp.SSEPath} {
		t.Run(path, func(t *testing.T) {
			client := sdk.NewClient(&sdk.Implementation{Name: "sdk-client", Version: "0.0.0"}, &sdk.ClientOptions{})
			transport := &sdk.SSEClientTransport{
				Endpoint:   srv.URL + path,
				HTTPClient: &http.Client{Transport: apiKeyRT{key: "sdk-key", base: http.DefaultTransport}},
			}
			cs, err := client.Connect(ctx, transport, &sdk.ClientSessionOptions{})
			if err != nil {
				t.Fatalf("connect: %v", err)
			}
			defer cs.Close()

			if got := cs.InitializeResult().ServerInfo.Name; got != engine.DefaultServerInfo.Name {
				t.Fatalf("server name = %q", got)
			}

			lt, err := cs.ListTools(ctx, &sdk.ListToolsParams{})
			if err != nil {
				t.Fatalf("ListTools: %v", err)
			}
			if len(lt.Tools) != 1 || lt.Tools[0].Name != "echo" {
				t.Fatalf("tools = %+v", lt.Tools)
			}

			res, err := cs.CallTool(ctx, &sdk.CallToolParams{
				Name:      "echo",
				Arguments: map[string]any{"message": "hello"},
			})
			if err != nil {
				t.Fatalf("CallTool: %v", err)
			}
			if res.IsError || len(res.Content) != 1 {
				t.Fatalf("call result = %+v", res)
			}
			text, ok := res.Content[0].(*sdk.TextContent)
			if !ok {
				t.Fatalf("content = %T", res.Content[0])
			}
			var payload map[string]string
			if err := json.Unmarshal([]byte(text.Text), &payload); err != nil || payload["echo"] != "hello" {
				t.Fatalf("payload %q: %v", text.Text, err)
			}
		})
	}
}

func TestSDKClientWithoutKeyIsRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := streaminghttp.New(newEngine(t, nil), newGate("sdk-key"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(h)
	defer srv.Close()

	client := sdk.NewClient(&sdk.Implementation{Name: "sdk-client", Version: "0.0.0"}, &sdk.ClientOptions{})
	transport := &sdk.SSEClientTransport{Endpoint: srv.URL + streaminghttp.MessagesPath}
	if cs, err := client.Connect(ctx, transport, &sdk.ClientSessionOptions{}); err == nil {
		cs.Close()
		t.Fatalf("connect without credentials succeeded")
	}
}
