package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementTransition = "connection_transition"
	measurementBattery    = "device_battery"
	measurementRegistry   = "registry_stats"
)

// TransitionPoint is one committed connection state change.
type TransitionPoint struct {
	DeviceID   string
	DeviceType string
	From       string
	To         string
	Cause      string
	Error      string
	At         time.Time
}

// WriteTransition records a connection state change.
//
// Tags: device_id, device_type, to, cause. Fields: from, failed and, for
// failures, error.
func (c *Client) WriteTransition(p TransitionPoint) {
	fields := map[string]any{
		"from":   p.From,
		"failed": p.Error != "",
	}
	if p.Error != "" {
		fields["error"] = p.Error
	}

	c.writePoint(measurementTransition, map[string]string{
		"device_id":   p.DeviceID,
		"device_type": p.DeviceType,
		"to":          p.To,
		"cause":       p.Cause,
	}, fields, p.At)
}

// WriteBattery records a device's reported battery level.
func (c *Client) WriteBattery(deviceID string, level int, at time.Time) {
	c.writePoint(measurementBattery,
		map[string]string{"device_id": deviceID},
		map[string]any{"level": level},
		at)
}

// RegistryStats is a periodic summary of the catalog.
type RegistryStats struct {
	Total      int
	Connected  int
	Connecting int
	Pairing    int
	Failed     int
	Paired     int
}

// WriteRegistryStats records a catalog summary.
func (c *Client) WriteRegistryStats(s RegistryStats, at time.Time) {
	c.writePoint(measurementRegistry, map[string]string{"site": c.cfg.Org}, map[string]any{
		"total":      s.Total,
		"connected":  s.Connected,
		"connecting": s.Connecting,
		"pairing":    s.Pairing,
		"failed":     s.Failed,
		"paired":     s.Paired,
	}, at)
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.writePoint(measurement, tags, fields, time.Now())
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
