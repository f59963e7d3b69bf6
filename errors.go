package gsusb

import (
	"errors"
	"fmt"

	"github.com/canhost/gsusb/internal/transport"
)

// Kind classifies a driver error into the four families a caller needs to
// branch on: transport-level failures, protocol negotiation failures,
// state-machine misuse, and malformed-Frame usage errors.
type Kind uint8

const (
	KindTransport Kind = iota
	KindProtocol
	KindState
	KindUsage
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindState:
		return "state"
	case KindUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// Error is the driver's single error type. Kind() lets callers branch
// without type-switching, and Unwrap preserves errors.Is/As chains down to
// the underlying transport or syscall error where one exists.
type Error struct {
	kind Kind
	op   string
	code int
	err  error
}

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	switch e.kind {
	case KindTransport:
		if e.op != "" {
			return fmt.Sprintf("gsusb: %s: %s (code %d)", e.op, e.err, e.code)
		}
		return fmt.Sprintf("gsusb: %s", e.err)
	default:
		return fmt.Sprintf("gsusb: %s", e.err)
	}
}

func (e *Error) Unwrap() error { return e.err }

// Sentinel errors a caller can compare with errors.Is.
var (
	ErrDeviceNotFound  = &Error{kind: KindTransport, err: errors.New("device not found")}
	ErrInvalidResponse = &Error{kind: KindTransport, err: errors.New("invalid control response")}

	ErrInvalidBitrate    = &Error{kind: KindProtocol, err: errors.New("no exact bit-timing solution for requested rate")}
	ErrUnsupportedFeature = &Error{kind: KindProtocol, err: errors.New("feature not supported by device")}
	ErrInvalidChannel    = &Error{kind: KindProtocol, err: errors.New("channel index out of range")}

	ErrNotOpen        = &Error{kind: KindState, err: errors.New("interface not open")}
	ErrNotRunning     = &Error{kind: KindState, err: errors.New("interface not running")}
	ErrAlreadyRunning = &Error{kind: KindState, err: errors.New("interface already running")}

	ErrInvalidFrame = &Error{kind: KindUsage, err: errors.New("frame violates dlc/data/flag invariants")}
)

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind && e.err.Error() == t.err.Error()
}

// libusbError wraps a transport-layer failure the way the original
// protocol's error taxonomy names it: an operation name plus an
// underlying status/errno.
func libusbError(op string, err error) *Error {
	return &Error{kind: KindTransport, op: op, err: err}
}

// wrapTransportErr translates an internal/transport error into the public
// Kind taxonomy, preserving the op/code wrapping for LibusbError-shaped
// failures and mapping the fixed sentinels directly.
func wrapTransportErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, transport.ErrDeviceNotFound):
		return ErrDeviceNotFound
	case errors.Is(err, transport.ErrInvalidControlResponse):
		return ErrInvalidResponse
	}
	var opErr *transport.OpError
	if errors.As(err, &opErr) {
		return libusbError(opErr.Op, opErr.Code)
	}
	return libusbError("transport", err)
}

func invalidFrame(reason string) error {
	return &Error{kind: KindUsage, err: fmt.Errorf("%w: %s", ErrInvalidFrame, reason)}
}
