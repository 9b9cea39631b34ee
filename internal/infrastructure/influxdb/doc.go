// Package influxdb provides time-series storage for resolver metrics.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes and health monitoring. The
// resolver records controller state transitions and feature lifecycle
// events here, giving operators a history of binding churn per
// provider package.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.RecordStateChange("com.example.carrier", "unbound", "binding")
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are batched and sent
// asynchronously; batch errors are delivered via SetOnError.
package influxdb
