package main

import (
	"github.com/mobus-dev/mobus-core/internal/infrastructure/logging"
	"github.com/mobus-dev/mobus-core/internal/infrastructure/mqtt"
	"github.com/mobus-dev/mobus-core/internal/messaging"
)

// newTransportFactory returns a messaging.TransportFactory backed by a paho
// session. Every session announces itself on statusTopic when it is set.
func newTransportFactory(statusTopic string, log *logging.Logger) messaging.TransportFactory {
	return func(cfg messaging.SessionConfig, sink func(messaging.Event)) (messaging.Transport, error) {
		session, err := mqtt.NewSession(mqtt.Options{
			Host:        cfg.Host,
			Port:        cfg.Port,
			TLS:         cfg.TLS,
			ClientID:    cfg.ClientID,
			Username:    cfg.Username,
			Password:    cfg.Password,
			KeepAlive:   cfg.KeepAlive,
			StatusTopic: statusTopic,
		}, sessionHandlers(sink))
		if err != nil {
			return nil, err
		}
		session.SetLogger(log)
		return session, nil
	}
}

// sessionHandlers maps paho callbacks onto runtime events.
func sessionHandlers(sink func(messaging.Event)) mqtt.Handlers {
	return mqtt.Handlers{
		OnConnect: func() {
			sink(messaging.Event{Kind: messaging.EventConnected})
		},
		OnDisconnect: func(err error) {
			sink(messaging.Event{Kind: messaging.EventDisconnected, Err: err})
		},
		OnMessage: func(topic string, payload []byte) {
			sink(messaging.Event{Kind: messaging.EventData, Topic: topic, Payload: payload})
		},
		OnError: func(err error) {
			sink(messaging.Event{Kind: messaging.EventError, Err: err})
		},
	}
}

var _ messaging.Transport = (*mqtt.Session)(nil)
