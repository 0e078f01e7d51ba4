// Package logging provides structured logging for the Mobus core.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the same level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	linkLog := logger.Component("link")
//	linkLog.Info("connected", "ssid", ssid)
//
// # Security
//
// Never log Wi-Fi passphrases, broker passwords or pairing codes.
package logging
