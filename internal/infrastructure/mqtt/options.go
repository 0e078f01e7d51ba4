package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	// defaultPort is used when Options.Port is not positive.
	defaultPort = 1883

	// defaultKeepAlive matches the device's broker keepalive.
	defaultKeepAlive = 30 * time.Second

	defaultConnectTimeout = 10 * time.Second

	// defaultOpTimeout bounds publish/subscribe/unsubscribe acknowledgement.
	defaultOpTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	maxReconnectInterval = time.Minute

	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// Options describes one broker session.
type Options struct {
	Host     string
	Port     int
	TLS      bool
	ClientID string

	// Username is only sent when non-empty.
	Username string
	Password string

	KeepAlive time.Duration

	// StatusTopic, when set, receives a retained "online" message on connect
	// and is registered as the will topic with an "offline" payload.
	StatusTopic string
}

// BrokerURL renders the paho broker URI, e.g. "tcp://broker.local:1883".
func (o Options) BrokerURL() string {
	scheme := "tcp"
	if o.TLS {
		scheme = "ssl"
	}
	port := o.Port
	if port <= 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s://%s:%d", scheme, o.Host, port)
}

// buildClientOptions creates paho options for a session.
//
// The session uses a clean session and paho's automatic reconnect; the
// caller re-subscribes on every connect callback.
func buildClientOptions(o Options) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.BrokerURL())
	opts.SetClientID(o.ClientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetOrderMatters(true)

	keepAlive := o.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if o.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	if o.StatusTopic != "" {
		opts.SetWill(o.StatusTopic, statusPayload(o.ClientID, "offline"), 1, true)
	}

	return opts
}

// statusPayload creates the JSON body for the retained status topic.
func statusPayload(clientID, status string) string {
	return fmt.Sprintf(`{"status":%q,"client_id":%q,"timestamp":%q}`,
		status, clientID, time.Now().UTC().Format(time.RFC3339))
}
