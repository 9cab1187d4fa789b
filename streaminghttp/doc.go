// Package streaminghttp serves MCP over HTTP at /messages, with /sse as an
// alias. Both paths accept a trailing slash and require the same
// credentials: an X-API-Key header or an Authorization bearer token.
//
// Every exchange runs the same steps. Anything other than a plain GET or
// POST, websocket upgrades included, is answered 404. An optional per-client
// rate limiter runs next, then the auth.Authenticator; a rejected caller gets
// 401 with a WWW-Authenticate: Bearer challenge and a fixed JSON detail,
// never a JSON-RPC body. Only then is the request routed.
//
// # Single-shot exchanges
//
// A POST without a session_id carries one JSON-RPC envelope. The body is
// buffered in full and handed to the engine; the response comes back as
// application/json. Notifications get 204 with no body. Protocol failures,
// unknown methods and internal errors alike, are JSON-RPC error objects sent
// with status 200.
//
// # Persistent streams
//
// A GET opens a Server-Sent Events stream. The first event is "endpoint",
// whose data is the path to post to, for example
// /messages?session_id=6f1c.... Messages posted there are acknowledged with
// 202 and their responses arrive on the stream as "message" events. A
// keep-alive comment is written every 15 seconds. The stream, and its
// session id, ends when the peer disconnects.
//
// Example:
//
//	h, err := streaminghttp.New(eng, gate, streaminghttp.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	srv := &http.Server{Addr: ":8080", Handler: h}
//	return srv.ListenAndServe()
package streaminghttp
