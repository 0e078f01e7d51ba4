package messaging

import (
	"fmt"
	"time"
)

// DefaultPort is used when Configure is given a non-positive port.
const DefaultPort = 1883

// EventKind identifies a transport event.
type EventKind int

// Transport event kinds.
const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventData
	EventError
)

// String returns the lowercase event name.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventData:
		return "data"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one message from the transport into the runtime.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload []byte
	Err     error
}

// SessionConfig is everything a transport needs to open a session.
type SessionConfig struct {
	Host        string
	Port        int
	PrincipalID string

	ClientID  string
	Username  string
	Password  string
	TLS       bool
	KeepAlive time.Duration
}

// Address renders host:port for logs.
func (c SessionConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Transport is one open broker session. Implementations deliver events
// through the sink passed to their TransportFactory.
type Transport interface {
	// Connect requests the connection without waiting for it to complete.
	Connect() error
	Subscribe(topic string, qos byte) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retain bool) error
	Close() error
}

// TransportFactory creates a transport for cfg whose events go to sink.
type TransportFactory func(cfg SessionConfig, sink func(Event)) (Transport, error)

// Notifier is woken whenever data lands on the primary topic.
type Notifier interface {
	Signal()
}

// ListenerInfo describes a listener registration for status reporting.
type ListenerInfo struct {
	ID      int    `json:"id"`
	Topic   string `json:"topic"`
	Pending int    `json:"pending"`
}

// Status is a point-in-time snapshot of the runtime.
type Status struct {
	Running        bool           `json:"running"`
	Connected      bool           `json:"connected"`
	Host           string         `json:"host,omitempty"`
	Port           int            `json:"port,omitempty"`
	PrincipalID    string         `json:"principal_id,omitempty"`
	PrimaryTopic   string         `json:"primary_topic,omitempty"`
	PrimaryPending int            `json:"primary_pending"`
	Dropped        uint64         `json:"dropped"`
	Listeners      []ListenerInfo `json:"listeners"`
}

// Logger is the logging contract used by the runtime.
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
