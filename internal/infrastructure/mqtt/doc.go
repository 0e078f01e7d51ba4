// Package mqtt provides the broker session used by the messaging runtime.
//
// A Session wraps one paho.mqtt.golang client. It is deliberately thin: it
// connects, subscribes, publishes and reports connect/disconnect/message
// events through Handlers. Subscription bookkeeping, queueing and the
// pause/resume lifecycle live in internal/messaging, which re-subscribes on
// every connect event.
//
// # Security Considerations
//
//   - Set Options.TLS for any broker outside the local network
//   - Credentials are only sent when a username is configured
//
// # Usage
//
//	s, err := mqtt.NewSession(mqtt.Options{Host: "broker.local", ClientID: id}, mqtt.Handlers{
//	    OnConnect: onConnect,
//	    OnMessage: func(topic string, payload []byte) { ... },
//	})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	err = s.Connect()
package mqtt
