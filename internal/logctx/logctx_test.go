package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestWrapIsIdempotent(t *testing.T) {
	l := Wrap(slog.New(slog.DiscardHandler))
	if Wrap(l) != l {
		t.Fatalf("wrapping twice produced a new logger")
	}
}

func TestHandlerAddsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	l := Wrap(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "r1", Method: "POST", Path: "/messages"})
	ctx = WithAuthData(ctx, &AuthData{Mode: "api_key", Subject: "alice"})
	ctx = WithToolCallData(ctx, &ToolCallData{ToolName: "query_data"})
	l.With("k", "v").InfoContext(ctx, "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	req, _ := rec["req"].(map[string]any)
	authGroup, _ := rec["auth"].(map[string]any)
	tool, _ := rec["tool"].(map[string]any)
	if req["id"] != "r1" || authGroup["subject"] != "alice" || tool["name"] != "query_data" || rec["k"] != "v" {
		t.Fatalf("record = %v", rec)
	}
}
