// Package influxdb records NearClip connection telemetry in InfluxDB.
//
// Every committed connection transition becomes a connection_transition
// point, tagged by device and target state, so failure rates and session
// lengths can be charted per device. Battery reports and periodic catalog
// summaries are written alongside.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTransition(influxdb.TransitionPoint{DeviceID: "dev-1", From: "CONNECTING", To: "CONNECTED", Cause: "connect"})
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval; failures are delivered to the SetOnError callback.
package influxdb
