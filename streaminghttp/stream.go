package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/ggoodman/govdata-mcp/internal/engine"
)

// streamBuffer is how many responses may queue for a slow stream reader
// before deliveries start waiting.
const streamBuffer = 32

var errStreamClosed = errors.New("stream closed")

// stream is one persistent event-stream connection. Responses to messages
// posted with its session id are written to it in arrival order.
type stream struct {
	id   string
	ctx  context.Context
	out  chan []byte
	done chan struct{}
}

func (s *stream) send(ctx context.Context, payload []byte) error {
	select {
	case s.out <- payload:
		return nil
	case <-s.done:
		return errStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

type streamRegistry struct {
	mu      sync.RWMutex
	streams map[string]*stream
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{streams: make(map[string]*stream)}
}

func (r *streamRegistry) add(s *stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[s.id] = s
}

func (r *streamRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, id)
}

func (r *streamRegistry) get(id string) *stream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.streams[id]
}

func (r *streamRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// handleStream opens a persistent event stream. The first event announces
// the endpoint the client posts to; responses follow as "message" events
// until the peer disconnects.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		h.log.WarnContext(ctx, "sse.accept.unsupported", slog.String("accept", r.Header.Get("Accept")))
		writeJSON(w, http.StatusNotAcceptable, map[string]string{"detail": "Accept must allow text/event-stream"})
		return
	}
	f, ok := w.(http.Flusher)
	if !ok {
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s := &stream{
		id:   uuid.NewString(),
		ctx:  ctx,
		out:  make(chan []byte, streamBuffer),
		done: make(chan struct{}),
	}
	h.streams.add(s)
	h.metrics.StreamOpened(ctx, 1)
	defer func() {
		h.streams.remove(s.id)
		close(s.done)
		h.metrics.StreamOpened(ctx, -1)
	}()

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	h.transition(r, stateResponding, slog.String("stream_id", s.id))
	endpoint := endpointPath(r.URL.Path) + "?" + sessionIDParam + "=" + s.id
	if err := writeSSEEvent(w, f, "endpoint", []byte(endpoint)); err != nil {
		h.log.InfoContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "sse.stream.start", slog.String("stream_id", s.id))

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.log.InfoContext(ctx, "sse.stream.end", slog.String("stream_id", s.id), slog.Duration("dur", time.Since(start)))
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				h.log.InfoContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
				return
			}
			f.Flush()
		case msg := <-s.out:
			if err := writeSSEEvent(w, f, "message", msg); err != nil {
				h.log.InfoContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
				return
			}
			h.log.DebugContext(ctx, "sse.message.deliver", slog.Int("bytes", len(msg)))
		}
	}
}

// handleSessionPost accepts a message for an open stream. The response, if
// any, is delivered on the stream rather than in this exchange.
func (h *Handler) handleSessionPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.URL.Query().Get(sessionIDParam)
	s := h.streams.get(id)
	if s == nil {
		h.log.InfoContext(ctx, "sse.session.miss", slog.String("stream_id", id))
		http.Error(w, "Could not find session", http.StatusNotFound)
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	go h.deliver(s, body)

	h.transition(r, stateResponding, slog.String("stream_id", s.id))
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")
}

// deliver handles one posted message within the stream's lifetime and
// queues the response on it.
func (h *Handler) deliver(s *stream, body []byte) {
	ctx := s.ctx
	var payload []byte
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.ErrorContext(ctx, "sse.routing.panic", slog.Any("panic", rec))
				payload, _ = json.Marshal(engine.InternalError(nil, fmt.Errorf("%v", rec)))
			}
		}()
		res := h.eng.HandleMessage(ctx, body)
		if res == nil {
			return
		}
		b, err := json.Marshal(res)
		if err != nil {
			b, _ = json.Marshal(engine.InternalError(res.ID, err))
		}
		payload = b
	}()
	if payload == nil {
		return
	}
	if err := s.send(ctx, payload); err != nil {
		h.log.InfoContext(ctx, "sse.message.drop", slog.String("stream_id", s.id), slog.String("err", err.Error()))
	}
}

// endpointPath drops a trailing slash so the announced endpoint is stable.
func endpointPath(p string) string {
	if p == "/" {
		return p
	}
	return strings.TrimRight(p, "/")
}

func writeSSEEvent(w io.Writer, f http.Flusher, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: ", event); err != nil {
		return fmt.Errorf("failed to write SSE event header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write SSE payload: %w", err)
	}
	if _, err := io.WriteString(w, "\n\n"); err != nil {
		return fmt.Errorf("failed to write SSE frame terminator: %w", err)
	}
	f.Flush()
	return nil
}
