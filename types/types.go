package types

// ---- Common service state (retained) ----

type ServiceState struct {
	Level  string `json:"level"`  // e.g. "idle", "ready", "stopped"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ns"`
}

// Link is the health reported for a capability.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

// CapabilityStatus is published whenever an operation completes in a
// degraded way (reset timeout, FIFO stall, disconnected output).
type CapabilityStatus struct {
	Link  Link   `json:"link"`
	TS    int64  `json:"ts_ns"`
	Error string `json:"error,omitempty"` // machine-readable short code
}

// ---- Capability kinds & info ----

type Kind string

const (
	KindPWM   Kind = "pwm"
	KindClock Kind = "clock"
)

// CapabilityAddress identifies a public capability on the bus.
type CapabilityAddress struct {
	Domain string `json:"domain"` // e.g. "io"
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
}

// Info envelope each capability exposes (retained).
type Info struct {
	SchemaVersion int         `json:"schema_version"`
	Driver        string      `json:"driver"`
	Detail        interface{} `json:"detail,omitempty"`
}

// Generic replies.
type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
