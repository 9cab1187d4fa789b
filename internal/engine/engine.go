package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/govdata-mcp/internal/jsonrpc"
	"github.com/ggoodman/govdata-mcp/internal/logctx"
	"github.com/ggoodman/govdata-mcp/internal/telemetry"
	"github.com/ggoodman/govdata-mcp/mcp"
	"github.com/ggoodman/govdata-mcp/mcpservice"
)

// DefaultServerInfo identifies the gateway in initialize responses.
var DefaultServerInfo = mcp.ImplementationInfo{Name: "calcite-govdata", Version: "0.1.0"}

// Dispatcher is the catalog surface the engine routes to.
type Dispatcher interface {
	ListTools() []mcp.Tool
	Invoke(ctx context.Context, name string, args json.RawMessage) *mcp.CallToolResult
	ListPrompts() []mcp.Prompt
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)
	ListResources() []mcp.Resource
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
}

type handlerFunc func(ctx context.Context, req *jsonrpc.Request) (any, error)

// Engine maps JSON-RPC methods to handlers. It holds no per-connection
// state, so one Engine serves every transport and exchange.
type Engine struct {
	dispatcher   Dispatcher
	info         mcp.ImplementationInfo
	instructions string
	log          *slog.Logger
	metrics      *telemetry.Metrics

	handlers map[string]handlerFunc
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics records per-method RPC counts and durations.
func WithMetrics(m *telemetry.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithServerInfo overrides DefaultServerInfo.
func WithServerInfo(info mcp.ImplementationInfo) EngineOption {
	return func(e *Engine) { e.info = info }
}

// WithInstructions sets the guidance text returned from initialize.
func WithInstructions(s string) EngineOption {
	return func(e *Engine) { e.instructions = s }
}

// NewEngine builds an Engine answering protocol methods from d. The
// Engine keeps no per-connection state and is shared by all transports.
func NewEngine(d Dispatcher, opts ...EngineOption) *Engine {
	e := &Engine{
		dispatcher: d,
		info:       DefaultServerInfo,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.handlers = map[string]handlerFunc{
		string(mcp.InitializeMethod):    e.handleInitialize,
		string(mcp.PingMethod):          e.handlePing,
		string(mcp.ToolsListMethod):     e.handleToolsList,
		string(mcp.ToolsCallMethod):     e.handleToolCall,
		string(mcp.PromptsListMethod):   e.handlePromptsList,
		string(mcp.PromptsGetMethod):    e.handlePromptsGet,
		string(mcp.ResourcesListMethod): e.handleResourcesList,
		string(mcp.ResourcesReadMethod): e.handleResourcesRead,
	}
	return e
}

// HandleMessage parses one raw envelope and handles it. It returns nil when
// the message is a notification and no reply must be sent.
func (e *Engine) HandleMessage(ctx context.Context, data []byte) *jsonrpc.Response {
	req, perr := jsonrpc.ParseRequest(data)
	if perr != nil {
		var id *jsonrpc.RequestID
		if req != nil {
			id = req.ID
		}
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", perr.Message), slog.Int("bytes", len(data)))
		e.metrics.RecordRPC(ctx, "invalid", int(perr.Code), 0)
		return &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, ID: id, Error: perr}
	}

	msgType := "request"
	if req.IsNotification() {
		msgType = "notification"
	}
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: req.Method,
		ID:     req.ID.String(),
		Type:   msgType,
		Bytes:  len(data),
	})
	return e.Handle(ctx, req)
}

// Handle routes one parsed envelope. Notifications yield nil. A panic in a
// handler becomes an internal error response.
func (e *Engine) Handle(ctx context.Context, req *jsonrpc.Request) (res *jsonrpc.Response) {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	if req.IsNotification() {
		log.DebugContext(ctx, "engine.notification")
		e.metrics.RecordRPC(ctx, "notification", 0, time.Since(start))
		return nil
	}

	h, ok := e.handlers[req.Method]
	if !ok {
		log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		e.metrics.RecordRPC(ctx, "unknown", int(jsonrpc.ErrorCodeMethodNotFound), time.Since(start))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "Method not found: "+req.Method, nil)
	}

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "engine.handle_request.panic", slog.Any("panic", r))
			e.metrics.RecordRPC(ctx, req.Method, int(jsonrpc.ErrorCodeInternalError), time.Since(start))
			res = InternalError(req.ID, fmt.Errorf("%v", r))
		}
	}()

	result, err := h(ctx, req)
	if err == nil {
		res, err = jsonrpc.NewResultResponse(req.ID, result)
	}
	if err != nil {
		res = errorResponse(req.ID, err)
		if res.Error.Code == jsonrpc.ErrorCodeInternalError {
			log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		} else {
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		}
		e.metrics.RecordRPC(ctx, req.Method, int(res.Error.Code), time.Since(start))
		return res
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	e.metrics.RecordRPC(ctx, req.Method, 0, time.Since(start))
	return res
}

// InternalError builds the -32603 response for an unexpected failure.
func InternalError(id *jsonrpc.RequestID, err error) *jsonrpc.Response {
	return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "Internal error: "+err.Error(), nil)
}

func errorResponse(id *jsonrpc.RequestID, err error) *jsonrpc.Response {
	var rpcErr *jsonrpc.Error
	switch {
	case errors.As(err, &rpcErr):
		return &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, ID: id, Error: rpcErr}
	case errors.Is(err, mcpservice.ErrUnknownPrompt),
		errors.Is(err, mcpservice.ErrUnknownResource),
		errors.Is(err, mcpservice.ErrInvalidArguments):
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInvalidParams, err.Error(), nil)
	}
	return InternalError(id, err)
}

func decodeParams(req *jsonrpc.Request, v any) error {
	if len(req.Params) == 0 || string(req.Params) == "null" {
		return nil
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return jsonrpc.Errorf(jsonrpc.ErrorCodeInvalidParams, "Invalid params: %v", err)
	}
	return nil
}

func (e *Engine) handleInitialize(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var params mcp.InitializeRequest
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	version := mcp.NegotiateProtocolVersion(params.ProtocolVersion)
	e.log.InfoContext(ctx, "engine.initialize",
		slog.String("requested_version", params.ProtocolVersion),
		slog.String("version", version),
		slog.String("client", params.ClientInfo.Name),
		slog.String("client_version", params.ClientInfo.Version),
	)
	return &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities: mcp.ServerCapabilities{
			Prompts:   &mcp.ListCapability{},
			Resources: &mcp.ListCapability{},
			Tools:     &mcp.ListCapability{},
		},
		ServerInfo:   e.info,
		Instructions: e.instructions,
	}, nil
}

func (e *Engine) handlePing(context.Context, *jsonrpc.Request) (any, error) {
	return mcp.EmptyResult{}, nil
}

func (e *Engine) handleToolsList(context.Context, *jsonrpc.Request) (any, error) {
	return &mcp.ListToolsResult{Tools: e.dispatcher.ListTools()}, nil
}

func (e *Engine) handleToolCall(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var params mcp.CallToolRequestReceived
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, jsonrpc.Errorf(jsonrpc.ErrorCodeInvalidParams, "Invalid params: missing tool name")
	}
	return e.dispatcher.Invoke(ctx, params.Name, params.Arguments), nil
}

func (e *Engine) handlePromptsList(context.Context, *jsonrpc.Request) (any, error) {
	return &mcp.ListPromptsResult{Prompts: e.dispatcher.ListPrompts()}, nil
}

func (e *Engine) handlePromptsGet(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var params mcp.GetPromptRequest
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, jsonrpc.Errorf(jsonrpc.ErrorCodeInvalidParams, "Invalid params: missing prompt name")
	}
	return e.dispatcher.GetPrompt(ctx, params.Name, params.Arguments)
}

func (e *Engine) handleResourcesList(context.Context, *jsonrpc.Request) (any, error) {
	return &mcp.ListResourcesResult{Resources: e.dispatcher.ListResources()}, nil
}

func (e *Engine) handleResourcesRead(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var params mcp.ReadResourceRequest
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	if params.URI == "" {
		return nil, jsonrpc.Errorf(jsonrpc.ErrorCodeInvalidParams, "Invalid params: missing uri")
	}
	return e.dispatcher.ReadResource(ctx, params.URI)
}
