package streaminghttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/ggoodman/govdata-mcp/auth"
	"github.com/ggoodman/govdata-mcp/internal/engine"
	"github.com/ggoodman/govdata-mcp/internal/logctx"
	"github.com/ggoodman/govdata-mcp/internal/ratelimit"
	"github.com/ggoodman/govdata-mcp/internal/telemetry"
)

var _ http.Handler = (*Handler)(nil)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	// MessagesPath is the canonical MCP endpoint; SSEPath is its alias.
	MessagesPath = "/messages"
	SSEPath      = "/sse"
	HealthPath   = "/health"

	// ServiceName is reported by the liveness endpoint.
	ServiceName = "govdata-mcp-server"

	sessionIDParam        = "session_id"
	wwwAuthenticateHeader = "WWW-Authenticate"

	defaultKeepAlive    = 15 * time.Second
	defaultMaxBodyBytes = 4 << 20
)

// exchangeState names a step of one HTTP exchange. Transitions are logged at
// debug level under "exchange.state".
type exchangeState string

const (
	stateAwaiting       exchangeState = "awaiting_request"
	stateAuthenticating exchangeState = "authenticating"
	stateRejected       exchangeState = "rejected"
	stateRouting        exchangeState = "routing"
	stateResponding     exchangeState = "responding"
	stateClosed         exchangeState = "closed"
)

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithRateLimiter throttles callers by client address before authentication.
// A nil limiter disables throttling.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// WithMetrics records rate limiting and open streams. Nil disables
// recording.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithKeepAlive sets the interval between keep-alive comments on persistent
// streams. The default is 15s.
func WithKeepAlive(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

// WithMaxBodyBytes bounds the buffered request body. The default is 4 MiB.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// Handler serves the MCP endpoints and the liveness check.
type Handler struct {
	mux     *http.ServeMux
	log     *slog.Logger
	eng     *engine.Engine
	auth    auth.Authenticator
	limiter *ratelimit.Limiter
	metrics *telemetry.Metrics

	keepAlive    time.Duration
	maxBodyBytes int64

	streams *streamRegistry
}

// New builds a Handler routing authenticated exchanges into eng.
func New(eng *engine.Engine, authenticator auth.Authenticator, opts ...Option) (*Handler, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	h := &Handler{
		log:          slog.New(slog.DiscardHandler),
		eng:          eng,
		auth:         authenticator,
		keepAlive:    defaultKeepAlive,
		maxBodyBytes: defaultMaxBodyBytes,
		streams:      newStreamRegistry(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = logctx.Wrap(h.log)

	mux := http.NewServeMux()
	for _, p := range []string{MessagesPath, SSEPath} {
		mux.HandleFunc(p, h.serveMCP)
		mux.HandleFunc(p+"/{$}", h.serveMCP)
	}
	mux.HandleFunc("GET "+HealthPath, h.handleHealth)
	h.mux = mux
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// OpenStreams reports how many persistent streams are connected.
func (h *Handler) OpenStreams() int { return h.streams.len() }

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": ServiceName})
}

func (h *Handler) transition(r *http.Request, s exchangeState, attrs ...slog.Attr) {
	h.log.LogAttrs(r.Context(), slog.LevelDebug, "exchange.state", append([]slog.Attr{slog.String("state", string(s))}, attrs...)...)
}

// serveMCP drives one exchange through authentication and routing.
func (h *Handler) serveMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	h.transition(r, stateAwaiting)
	defer func() {
		h.transition(r, stateClosed, slog.Duration("dur", time.Since(start)))
	}()

	if !isHTTPShaped(r) {
		h.log.InfoContext(r.Context(), "exchange.not_http", slog.String("upgrade", r.Header.Get("Upgrade")))
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if ok, wait := h.limiter.Allow(clientKey(r)); !ok {
		h.metrics.RecordRateLimited(r.Context())
		h.log.InfoContext(r.Context(), "exchange.rate_limited", slog.Duration("retry_after", wait))
		w.Header().Set("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(wait)))
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "Too many requests"})
		return
	}

	h.transition(r, stateAuthenticating)
	p := auth.InspectHeaders(r.Header)
	h.log.DebugContext(r.Context(), "exchange.request",
		slog.String("query", r.URL.RawQuery),
		slog.Bool("api_key_present", p.APIKeyPresent),
		slog.Bool("bearer_present", p.BearerPresent),
		slog.String("api_key", p.MaskedAPIKey),
		slog.String("bearer", p.MaskedBearer),
	)
	d := h.auth.Authenticate(r.Context(), r.Header)
	if !d.Authenticated {
		h.transition(r, stateRejected)
		h.log.InfoContext(r.Context(), "auth.fail", slog.String("reason", string(d.Reason)))
		writeChallenge(w, auth.UnauthorizedChallenge())
		return
	}
	r = r.WithContext(logctx.WithAuthData(r.Context(), &logctx.AuthData{Mode: string(d.Mode), Subject: d.Claims.Subject()}))
	h.log.InfoContext(r.Context(), "auth.ok")

	h.transition(r, stateRouting)
	switch {
	case r.Method == http.MethodGet:
		h.handleStream(w, r)
	case r.URL.Query().Has(sessionIDParam):
		h.handleSessionPost(w, r)
	default:
		h.handlePost(w, r)
	}
}

// isHTTPShaped rejects anything but plain GET and POST. Websocket upgrades
// are not served here.
func isHTTPShaped(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		return false
	}
	return !strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// handlePost answers one JSON-RPC envelope in the response body.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var payload []byte
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.ErrorContext(ctx, "exchange.routing.panic", slog.Any("panic", rec))
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

	h.transition(r, stateResponding, slog.Int("bytes", len(payload)))
	if payload == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		h.log.InfoContext(ctx, "exchange.write.fail", slog.String("err", err.Error()))
	}
}

// readBody buffers the whole request body. It writes the error response
// itself and reports false when the exchange must stop.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	ctx := r.Context()
	// Any declared type is accepted; a body that is not JSON-RPC is answered
	// by the engine with a parse error.
	if r.Header.Get("Content-Type") != "" {
		ctype, err := contenttype.GetMediaType(r)
		if err != nil || !ctype.Matches(jsonMediaType) {
			h.log.WarnContext(ctx, "content_type.unexpected", slog.String("content_type", r.Header.Get("Content-Type")))
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.log.WarnContext(ctx, "exchange.body.too_large", slog.Int64("limit", tooLarge.Limit))
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"detail": "Request body too large"})
			return nil, false
		}
		// The peer went away mid-body; nothing has been dispatched yet.
		h.log.InfoContext(ctx, "exchange.body.aborted", slog.String("err", err.Error()), slog.Int("bytes", len(body)))
		return nil, false
	}
	return body, true
}

// clientKey identifies the caller for rate limiting.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeChallenge(w http.ResponseWriter, c auth.Challenge) {
	w.Header().Set(wwwAuthenticateHeader, c.WWWAuthenticate)
	writeJSON(w, c.Status, map[string]string{"detail": c.Detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
