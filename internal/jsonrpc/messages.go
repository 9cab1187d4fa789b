package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// notificationPrefix marks fire-and-forget methods. Peers send these with or
// without an id and never expect a reply.
const notificationPrefix = "notifications/"

// Request represents one inbound JSON-RPC envelope.
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return strings.HasPrefix(r.Method, notificationPrefix)
}

// Response represents a JSON-RPC response. The id member is always
// present on the wire, as null when unknown.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	ID             *RequestID      `json:"id"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
}

// NewResultResponse builds a successful JSON-RPC response object.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Result:         resultBytes,
		ID:             id,
	}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
}

// ParseRequest decodes a single envelope. A missing "jsonrpc" member is
// tolerated; a mismatched one, a batch array, or an envelope without a
// method is an invalid request. The returned id is populated whenever it
// could be read so the caller can echo it in the error response.
func ParseRequest(data []byte) (*Request, *Error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, Errorf(ErrorCodeParseError, "Parse error: empty body")
	}
	if trimmed[0] == '[' {
		return nil, Errorf(ErrorCodeInvalidRequest, "Invalid Request: batch messages are not supported")
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, Errorf(ErrorCodeParseError, "Parse error: %v", err)
	}
	if req.JSONRPCVersion != "" && req.JSONRPCVersion != ProtocolVersion {
		return &req, Errorf(ErrorCodeInvalidRequest, "Invalid Request: unsupported jsonrpc version %q", req.JSONRPCVersion)
	}
	if req.Method == "" {
		return &req, Errorf(ErrorCodeInvalidRequest, "Invalid Request: missing method")
	}
	req.JSONRPCVersion = ProtocolVersion
	return &req, nil
}
