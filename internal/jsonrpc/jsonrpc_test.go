package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		want any
	}{
		{`1`, int64(1)},
		{`"1"`, "1"},
		{`"abc"`, "abc"},
		{`1.5`, 1.5},
	}
	for _, tc := range cases {
		var id RequestID
		if err := json.Unmarshal([]byte(tc.in), &id); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if id.Value() != tc.want {
			t.Fatalf("%s decoded to %#v, want %#v", tc.in, id.Value(), tc.want)
		}
		out, err := json.Marshal(&id)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != tc.in {
			t.Fatalf("round trip %s -> %s", tc.in, out)
		}
	}

	var id RequestID
	if err := json.Unmarshal([]byte(`{"a":1}`), &id); err == nil {
		t.Fatalf("expected error for object id")
	}
}

func TestResponseAlwaysCarriesID(t *testing.T) {
	b, err := json.Marshal(NewErrorResponse(nil, ErrorCodeParseError, "Parse error", nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`
	if string(b) != want {
		t.Fatalf("got %s, want %s", b, want)
	}

	res, err := NewResultResponse(NewRequestID(7), map[string]any{})
	if err != nil {
		t.Fatalf("NewResultResponse: %v", err)
	}
	b, _ = json.Marshal(res)
	if string(b) != `{"jsonrpc":"2.0","id":7,"result":{}}` {
		t.Fatalf("got %s", b)
	}
}

func TestParseRequest(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		code    ErrorCode
		method  string
		wantID  string
		notifOK bool
	}{
		{name: "valid", body: `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, method: "tools/list", wantID: "1"},
		{name: "missing version tolerated", body: `{"id":"a","method":"ping"}`, method: "ping", wantID: "a"},
		{name: "notification", body: `{"jsonrpc":"2.0","method":"notifications/initialized"}`, method: "notifications/initialized", notifOK: true},
		{name: "empty", body: ``, code: ErrorCodeParseError},
		{name: "garbage", body: `{not json`, code: ErrorCodeParseError},
		{name: "batch", body: `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, code: ErrorCodeInvalidRequest},
		{name: "bad version", body: `{"jsonrpc":"1.0","id":3,"method":"ping"}`, code: ErrorCodeInvalidRequest, wantID: "3"},
		{name: "missing method", body: `{"jsonrpc":"2.0","id":4}`, code: ErrorCodeInvalidRequest, wantID: "4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, perr := ParseRequest([]byte(tc.body))
			if tc.code != 0 {
				if perr == nil || perr.Code != tc.code {
					t.Fatalf("expected code %d, got %v", tc.code, perr)
				}
				if tc.wantID != "" && (req == nil || req.ID.String() != tc.wantID) {
					t.Fatalf("expected partial request with id %s, got %+v", tc.wantID, req)
				}
				return
			}
			if perr != nil {
				t.Fatalf("unexpected error: %v", perr)
			}
			if req.Method != tc.method || req.JSONRPCVersion != ProtocolVersion {
				t.Fatalf("request = %+v", req)
			}
			if req.ID.String() != tc.wantID {
				t.Fatalf("id = %q, want %q", req.ID.String(), tc.wantID)
			}
			if req.IsNotification() != tc.notifOK {
				t.Fatalf("IsNotification = %v", req.IsNotification())
			}
		})
	}
}
