package main

import (
	"time"

	"github.com/nearclip/nearclip-core/internal/infrastructure/influxdb"
	"github.com/nearclip/nearclip-core/internal/lifecycle"
)

type transitionWriter interface {
	WriteTransition(p influxdb.TransitionPoint)
	WriteBattery(deviceID string, level int, at time.Time)
}

// transitionRecorder writes committed transitions to InfluxDB.
type transitionRecorder struct {
	writer transitionWriter
}

func newTransitionRecorder(w transitionWriter) *transitionRecorder {
	return &transitionRecorder{writer: w}
}

// Record is a lifecycle.Manager listener.
func (r *transitionRecorder) Record(t lifecycle.Transition) {
	r.writer.WriteTransition(influxdb.TransitionPoint{
		DeviceID:   t.DeviceID,
		DeviceType: string(t.Device.Type),
		From:       string(t.From),
		To:         string(t.To),
		Cause:      string(t.Cause),
		Error:      t.Error,
		At:         t.At,
	})

	if t.Device.BatteryLevel != nil {
		r.writer.WriteBattery(t.DeviceID, *t.Device.BatteryLevel, t.At)
	}
}
