package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ggoodman/govdata-mcp/internal/engine"
	"github.com/ggoodman/govdata-mcp/internal/logctx"
)

// Handler is a single-connection stdio transport that reads newline-delimited
// JSON-RPC messages from an io.Reader and writes responses to an io.Writer. By
// default, it uses os.Stdin and os.Stdout.
//
// The pipe is trusted: no credentials are checked. The peer is identified in
// logs by the UserProvider, which defaults to the current OS user.
type Handler struct {
	eng          *engine.Engine
	r            io.Reader
	w            io.Writer
	l            *slog.Logger
	userProvider UserProvider
	maxInFlight  int

	writeMu sync.Mutex
}

const defaultMaxInFlight = 16

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(eng *engine.Engine, opts ...Option) *Handler {
	h := &Handler{
		eng:          eng,
		r:            os.Stdin,
		w:            os.Stdout,
		l:            slog.New(slog.DiscardHandler),
		userProvider: OSUserProvider{},
		maxInFlight:  defaultMaxInFlight,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.l = logctx.Wrap(h.l)
	return h
}

// Serve runs the read loop until EOF on the reader or ctx is canceled. Each
// request is handled on its own goroutine, up to the in-flight bound, so a
// slow query does not hold up pings. Responses are written whole, one per
// line, in completion order. Serve waits for in-flight requests before
// returning. It returns nil on EOF.
func (h *Handler) Serve(ctx context.Context) error {
	principal, err := h.userProvider.CurrentUserID()
	if err != nil {
		h.l.WarnContext(ctx, "stdio.user.fail", slog.String("err", err.Error()))
	}
	ctx = logctx.WithAuthData(ctx, &logctx.AuthData{Mode: "stdio", Subject: principal})
	h.l.InfoContext(ctx, "stdio.serve.start")

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		readErr <- readLines(ctx, h.r, lines)
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	slots := make(chan struct{}, h.maxInFlight)

	for {
		select {
		case <-ctx.Done():
			h.l.InfoContext(ctx, "stdio.serve.cancel")
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				err := <-readErr
				if err != nil {
					h.l.ErrorContext(ctx, "stdio.read.fail", slog.String("err", err.Error()))
					return fmt.Errorf("stdio: read: %w", err)
				}
				h.l.InfoContext(ctx, "stdio.serve.eof")
				return nil
			}
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				h.l.InfoContext(ctx, "stdio.serve.cancel")
				return ctx.Err()
			}
			wg.Add(1)
			go func() {
				defer func() {
					<-slots
					wg.Done()
				}()
				h.handleLine(ctx, line)
			}()
		}
	}
}

func (h *Handler) handleLine(ctx context.Context, line []byte) {
	var out []byte
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				h.l.ErrorContext(ctx, "stdio.handle.panic", slog.Any("panic", rec))
				out, _ = json.Marshal(engine.InternalError(nil, fmt.Errorf("%v", rec)))
			}
		}()
		res := h.eng.HandleMessage(ctx, line)
		if res == nil {
			return
		}
		b, err := json.Marshal(res)
		if err != nil {
			b, _ = json.Marshal(engine.InternalError(res.ID, err))
		}
		out = b
	}()
	if out == nil {
		return
	}
	if err := h.writeLine(out); err != nil {
		h.l.ErrorContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
	}
}

func (h *Handler) writeLine(b []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_, err := h.w.Write(append(b, '\n'))
	return err
}

// readLines sends each non-blank line to out and closes it at EOF. A final
// line without a newline is still delivered.
func readLines(ctx context.Context, r io.Reader, out chan<- []byte) error {
	defer close(out)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			select {
			case out <- trimmed:
			case <-ctx.Done():
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
}
