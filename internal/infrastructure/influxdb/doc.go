// Package influxdb records device connectivity telemetry in InfluxDB v2.
//
// Client wraps the official influxdb-client-go library: one ping on
// Connect, a batching non-blocking write API, and health checks. Recorder
// turns link, messaging and notification events into points tagged with
// the device id.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	rec := influxdb.NewRecorder(client, deviceID)
//	rec.LinkState("connected", 0, false)
//
// # Error Handling
//
// Writes never return errors; asynchronous batch failures are delivered to
// the SetOnError callback.
package influxdb
