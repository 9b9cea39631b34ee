package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// RecordStateChange writes a controller state transition for one
// provider package. The write is non-blocking; data is batched and
// sent asynchronously.
//
// Example:
//
//	client.RecordStateChange("com.example.carrier", "unbound", "binding")
func (c *Client) RecordStateChange(pkg string, from, to string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"controller_state",
		map[string]string{
			"package": pkg,
			"from":    from,
			"to":      to,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordFeatureEvent writes a feature lifecycle event: created,
// removed, or a status transition such as "ready" or "unavailable".
func (c *Client) RecordFeatureEvent(pkg string, slot int, feature, status string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"feature_events",
		map[string]string{
			"package": pkg,
			"slot":    strconv.Itoa(slot),
			"feature": feature,
		},
		map[string]interface{}{
			"status": status,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and
// fields. Use this for measurements that don't fit the helpers.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp,
// for data that arrives delayed.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
