// Package stdio serves MCP over a process pipe: one JSON-RPC message per
// line on stdin, one response per line on stdout. It is how desktop agents
// launch the gateway as a subprocess.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Auth             : none; the pipe is trusted, the OS user is logged
//	Framing          : newline-delimited JSON, blank lines ignored
//	Ordering         : requests run concurrently, responses in completion order
//
// Stdout is reserved for protocol frames, so loggers passed to WithLogger
// must write elsewhere (the gateway logs to stderr).
//
// Example:
//
//	h := stdio.NewHandler(eng, stdio.WithLogger(log))
//	if err := h.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//		log.Error("stdio.serve.fail", slog.String("err", err.Error()))
//	}
package stdio
