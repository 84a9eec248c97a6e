// Package errs defines the domain error taxonomy shared by every tool
// handler. Every failure the dispatcher can report to a caller carries one
// of these kinds plus a human-readable message, never a bare transport
// error for a known domain failure.
package errs

import "fmt"

// Kind identifies a domain failure category. Kinds are a closed set; new
// failure modes should map onto an existing kind before a new one is added.
type Kind string

const (
	KindInvalidVoice       Kind = "invalid_voice"
	KindNameOccupied       Kind = "name_occupied"
	KindMicBusy            Kind = "mic_busy"
	KindMuted              Kind = "muted"
	KindTimeout            Kind = "timeout"
	KindCancelled          Kind = "cancelled"
	KindEngineUnavailable  Kind = "engine_unavailable"
)

// Domain wraps a Kind with a human-readable message and optional context
// fields. Tool responses carry Kind and Message; Context is not copied
// into them.
type Domain struct {
	Kind    Kind
	Message string
	Context map[string]any
}

func (e *Domain) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds a Domain error with no extra context.
func New(kind Kind, message string) *Domain {
	return &Domain{Kind: kind, Message: message}
}

// Newf builds a Domain error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Domain {
	return &Domain{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithContext returns a copy of e with the given context fields merged in.
func (e *Domain) WithContext(ctx map[string]any) *Domain {
	merged := make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		merged[k] = v
	}
	for k, v := range ctx {
		merged[k] = v
	}
	return &Domain{Kind: e.Kind, Message: e.Message, Context: merged}
}

// As reports whether err is a *Domain, mirroring errors.As without forcing
// every caller to import "errors" for this one case.
func As(err error) (*Domain, bool) {
	d, ok := err.(*Domain)
	return d, ok
}
