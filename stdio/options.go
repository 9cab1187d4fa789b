package stdio

import (
	"io"
	"log/slog"
)

// Option customizes a Handler.
type Option func(*Handler)

// WithIO sets the reader and writer for the handler.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger overrides the logger. It must not write to the protocol
// output stream.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}

// WithUserProvider overrides how the local peer is named in logs.
func WithUserProvider(up UserProvider) Option {
	return func(h *Handler) {
		if up != nil {
			h.userProvider = up
		}
	}
}

// WithMaxInFlight bounds how many requests are handled at once. Further lines
// wait to be read until a slot frees up. The default is 16.
func WithMaxInFlight(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxInFlight = n
		}
	}
}
