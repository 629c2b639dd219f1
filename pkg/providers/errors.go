package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

type ErrorKind string

const (
	KindCredentials   ErrorKind = "credentials"
	KindUnreachable   ErrorKind = "unreachable"
	KindModelNotFound ErrorKind = "model_not_found"
	KindCancelled     ErrorKind = "cancelled"
	KindGeneric       ErrorKind = "generic"
)

// Sentinels matched by errors.Is against a *GenerationError of that kind.
var (
	ErrCredentialsInvalid = errors.New("generator credentials invalid")
	ErrUnreachable        = errors.New("generator endpoint unreachable")
	ErrModelNotFound      = errors.New("generator model not found")
	ErrCancelled          = errors.New("generation cancelled")
	ErrGeneration         = errors.New("generation failed")
)

// GenerationError is the typed failure of a Generate call.
type GenerationError struct {
	Kind     ErrorKind
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *GenerationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" generation failed (")
	b.WriteString(string(e.Kind))
	b.WriteString(")")
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status=%d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// UserMessage is a one-line explanation suitable for the player.
func (e *GenerationError) UserMessage() string {
	switch e.Kind {
	case KindCredentials:
		return "The game master rejected the API credentials. Check the API key for " + e.Provider + "."
	case KindUnreachable:
		return "The game master endpoint could not be reached. Check the API base URL and your network."
	case KindModelNotFound:
		return "The configured model was not found at " + e.Provider + ". Check gm.model."
	case KindCancelled:
		return "The turn was cancelled."
	default:
		if e.Message != "" {
			return "The game master failed: " + e.Message
		}
		return "The game master failed to respond."
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindCredentials:
		return ErrCredentialsInvalid
	case KindUnreachable:
		return ErrUnreachable
	case KindModelNotFound:
		return ErrModelNotFound
	case KindCancelled:
		return ErrCancelled
	default:
		return ErrGeneration
	}
}

// KindOf reports the kind of a generation failure, or "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindGeneric
}

func statusError(provider string, status int, message string) *GenerationError {
	kind := KindGeneric
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindCredentials
	case status == http.StatusNotFound && strings.Contains(strings.ToLower(message), "model"):
		kind = KindModelNotFound
	case status == http.StatusNotFound,
		status == http.StatusRequestTimeout,
		status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		kind = KindUnreachable
	}
	return &GenerationError{Kind: kind, Provider: provider, Status: status, Message: message}
}

// transportError classifies a failure that happened before or while reading
// the response. ctx decides between cancellation and timeout.
func transportError(ctx context.Context, provider string, err error) *GenerationError {
	ge := &GenerationError{Kind: KindGeneric, Provider: provider, Err: err}
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		ge.Kind = KindCancelled
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		ge.Kind = KindUnreachable
		ge.Message = "request timed out"
	case errors.As(err, &netErr):
		ge.Kind = KindUnreachable
	}
	return ge
}
