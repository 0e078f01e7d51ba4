package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Logger is the logging contract used by the session.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Handlers receives session events. Every field is optional. Handlers run on
// paho goroutines and must not block for long.
type Handlers struct {
	// OnConnect fires after every successful (re)connect.
	OnConnect func()

	// OnDisconnect fires when an established connection is lost.
	OnDisconnect func(err error)

	// OnMessage fires for every message on a subscribed topic, in arrival order.
	OnMessage func(topic string, payload []byte)

	// OnError reports a connection attempt that ended without connecting.
	OnError func(err error)
}

// Session is a single broker session built on paho.mqtt.golang.
//
// NewSession only prepares the client; Connect requests the connection and
// returns immediately. Subscriptions are not remembered across reconnects:
// the owner re-subscribes from Handlers.OnConnect.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Session struct {
	client pahomqtt.Client
	opts   Options
	h      Handlers

	connected atomic.Bool
	closed    atomic.Bool

	logger   Logger
	loggerMu sync.RWMutex
}

// NewSession creates a session for o. It does not touch the network.
//
// Parameters:
//   - o: Broker address, identity and credentials
//   - h: Event callbacks
//
// Returns:
//   - *Session: Session ready for Connect
//   - error: ErrInvalidOptions if the host is empty
func NewSession(o Options, h Handlers) (*Session, error) {
	if o.Host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrInvalidOptions)
	}

	s := &Session{opts: o, h: h}

	opts := buildClientOptions(o)
	opts.SetDefaultPublishHandler(s.wrapHandler())
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		s.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.handleDisconnect(err)
	})

	s.client = pahomqtt.NewClient(opts)
	return s, nil
}

// Connect requests the broker connection. It does not wait for the CONNACK;
// progress is reported through Handlers.
func (s *Session) Connect() error {
	if s.closed.Load() {
		return ErrClosed
	}

	token := s.client.Connect()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil && !s.closed.Load() {
			if s.h.OnError != nil {
				s.h.OnError(fmt.Errorf("connecting to %s: %w", s.opts.BrokerURL(), err))
			}
		}
	}()
	return nil
}

func (s *Session) handleConnect() {
	if s.closed.Load() {
		return
	}
	s.connected.Store(true)

	if s.opts.StatusTopic != "" {
		s.client.Publish(s.opts.StatusTopic, 1, true, statusPayload(s.opts.ClientID, "online"))
	}

	if s.h.OnConnect != nil {
		s.h.OnConnect()
	}
}

func (s *Session) handleDisconnect(err error) {
	s.connected.Store(false)
	if s.closed.Load() {
		return
	}
	if s.h.OnDisconnect != nil {
		s.h.OnDisconnect(err)
	}
}

// IsConnected reports whether the broker link is currently up.
func (s *Session) IsConnected() bool {
	return !s.closed.Load() && s.connected.Load() && s.client.IsConnectionOpen()
}

// Publish sends payload to topic and waits for the broker acknowledgement
// (QoS > 0) or for the write to complete (QoS 0).
func (s *Session) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !s.IsConnected() {
		return ErrNotConnected
	}

	token := s.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultOpTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe subscribes to topic. Messages are delivered to Handlers.OnMessage.
func (s *Session) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !s.IsConnected() {
		return ErrNotConnected
	}

	// nil callback routes messages to the default publish handler.
	token := s.client.Subscribe(topic, qos, nil)
	if !token.WaitTimeout(defaultOpTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Unsubscribe removes a subscription.
func (s *Session) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !s.IsConnected() {
		return ErrNotConnected
	}

	token := s.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultOpTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

// Close tears the session down. A graceful "offline" status is published
// first when a status topic is configured. Close is idempotent and no
// handler fires after it returns.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if s.opts.StatusTopic != "" && s.connected.Load() {
		token := s.client.Publish(s.opts.StatusTopic, 1, true, statusPayload(s.opts.ClientID, "offline"))
		token.WaitTimeout(defaultOpTimeout)
	}

	s.client.Disconnect(defaultDisconnectQuiesce)
	s.connected.Store(false)
	return nil
}

// SetLogger sets a logger for handler panics. If not set, panics are
// recovered silently.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Session) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// wrapHandler adapts Handlers.OnMessage to paho with panic recovery.
func (s *Session) wrapHandler() pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := s.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if s.closed.Load() || s.h.OnMessage == nil {
			return
		}
		s.h.OnMessage(msg.Topic(), msg.Payload())
	}
}
