// Package config handles loading and validating Mobus core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (MOBUS_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker credentials and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Wi-Fi secrets never live here; they are stored in the credential table
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
