package link

import "fmt"

// State is the station connection state.
type State int

// Connection states. Failed is terminal until the next ConfigureAndConnect.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// settled reports whether a connection attempt has finished.
func (s State) settled() bool {
	return s == StateConnected || s == StateFailed
}

// EventKind identifies a radio event.
type EventKind int

// Radio event kinds.
const (
	EventStarted EventKind = iota + 1
	EventDisconnected
	EventGotIP
)

// String returns the lowercase event name.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventDisconnected:
		return "disconnected"
	case EventGotIP:
		return "got_ip"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one notification from the radio backend.
type Event struct {
	Kind EventKind

	// Address is the acquired address for EventGotIP.
	Address string

	// Reason is the backend's disconnect reason, if any.
	Reason string
}

// Config is a station configuration. It is transient: only the last
// applied one is remembered, in memory.
type Config struct {
	SSID     string
	Password string
}

// Radio is the station backend. Implementations deliver events to
// Manager.HandleEvent from their own goroutine.
type Radio interface {
	Started() bool
	Start() error
	Stop() error
	SetConfig(cfg Config) error

	// Connect requests association with the configured network. It returns
	// once the request is issued.
	Connect() error
	Disconnect() error
}

// Logger is the logging contract used by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
