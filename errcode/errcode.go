package errcode

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK             Code = "ok"
	Busy           Code = "busy"
	Unsupported    Code = "unsupported"
	InvalidParams  Code = "invalid_params"
	InvalidPayload Code = "invalid_payload"
	UnknownPWM     Code = "unknown_pwm"
	InvalidTopic   Code = "invalid_topic"

	// Fatal to the requested operation: no hardware state changed.
	ClockUnavailable Code = "clock_unavailable"
	WindowUnmapped   Code = "window_unmapped"

	// Degraded conditions: operation completed, hardware left in the
	// best achievable state, caller warned.
	Timeout            Code = "timeout"
	NoFreeFIFOSlot     Code = "no_free_fifo_slot"
	OutputDisconnected Code = "output_disconnected"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// Degraded reports whether c is a warn-and-continue condition rather
// than a hard failure.
func Degraded(c Code) bool {
	switch c {
	case Timeout, NoFreeFIFOSlot, OutputDisconnected:
		return true
	default:
		return false
	}
}
