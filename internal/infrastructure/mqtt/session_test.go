package mqtt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_BrokerURL(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"plain", Options{Host: "broker.local", Port: 1883}, "tcp://broker.local:1883"},
		{"default port", Options{Host: "broker.local"}, "tcp://broker.local:1883"},
		{"negative port", Options{Host: "broker.local", Port: -4}, "tcp://broker.local:1883"},
		{"tls", Options{Host: "broker.local", Port: 8883, TLS: true}, "ssl://broker.local:8883"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.BrokerURL())
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	opts := buildClientOptions(Options{
		Host:        "broker.local",
		Port:        1883,
		ClientID:    "dev-1",
		StatusTopic: Topics{}.DeviceStatus("dev-1"),
	})

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://broker.local:1883", opts.Servers[0].String())
	assert.Equal(t, "dev-1", opts.ClientID)
	assert.Empty(t, opts.Username, "username is only set when provided")
	assert.Equal(t, int64(30), opts.KeepAlive)
	assert.True(t, opts.CleanSession)
	assert.True(t, opts.AutoReconnect)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "mobus/devices/dev-1/status", opts.WillTopic)
	assert.Contains(t, string(opts.WillPayload), `"status":"offline"`)
	assert.Nil(t, opts.TLSConfig)
}

func TestBuildClientOptions_AuthAndTLS(t *testing.T) {
	opts := buildClientOptions(Options{
		Host:      "broker.local",
		TLS:       true,
		Username:  "device",
		Password:  "secret",
		KeepAlive: 45 * time.Second,
	})

	assert.Equal(t, "device", opts.Username)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, int64(45), opts.KeepAlive)
	require.NotNil(t, opts.TLSConfig)
	assert.False(t, opts.WillEnabled)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "mobus/devices/x/status", Topics{}.DeviceStatus("x"))
}

func TestNewSession_EmptyHost(t *testing.T) {
	_, err := NewSession(Options{}, Handlers{})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestSession_OperationsBeforeConnect(t *testing.T) {
	s, err := NewSession(Options{Host: "127.0.0.1", Port: 1}, Handlers{})
	require.NoError(t, err)

	assert.False(t, s.IsConnected())
	assert.ErrorIs(t, s.Publish("t", []byte("x"), 1, false), ErrNotConnected)
	assert.ErrorIs(t, s.Subscribe("t", 1), ErrNotConnected)
	assert.ErrorIs(t, s.Unsubscribe("t"), ErrNotConnected)

	assert.ErrorIs(t, s.Publish("", nil, 0, false), ErrInvalidTopic)
	assert.ErrorIs(t, s.Publish("t", nil, 3, false), ErrInvalidQoS)
	assert.ErrorIs(t, s.Subscribe("", 0), ErrInvalidTopic)
	assert.ErrorIs(t, s.Subscribe("t", 3), ErrInvalidQoS)
	assert.ErrorIs(t, s.Unsubscribe(""), ErrInvalidTopic)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s, err := NewSession(Options{Host: "127.0.0.1", Port: 1}, Handlers{})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Connect(), ErrClosed)
	assert.ErrorIs(t, s.Publish("t", nil, 0, false), ErrNotConnected)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}
func (l *recordingLogger) Warn(string, ...any) {}

func TestSession_WrapHandler(t *testing.T) {
	var got []string
	s, err := NewSession(Options{Host: "127.0.0.1"}, Handlers{
		OnMessage: func(topic string, payload []byte) {
			if string(payload) == "boom" {
				panic("handler exploded")
			}
			got = append(got, topic+"="+string(payload))
		},
	})
	require.NoError(t, err)
	logger := &recordingLogger{}
	s.SetLogger(logger)

	h := s.wrapHandler()
	h(nil, fakeMessage{topic: "a", payload: []byte("1")})
	h(nil, fakeMessage{topic: "a", payload: []byte("boom")})
	h(nil, fakeMessage{topic: "b", payload: []byte("2")})

	assert.Equal(t, []string{"a=1", "b=2"}, got)
	assert.Equal(t, []string{"MQTT handler panic recovered"}, logger.errors)

	// Nothing is delivered after Close.
	require.NoError(t, s.Close())
	h(nil, fakeMessage{topic: "c", payload: []byte("3")})
	assert.Len(t, got, 2)
}
