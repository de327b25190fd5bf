package main

import (
	"testing"
	"time"

	"github.com/nearclip/nearclip-core/internal/device"
	"github.com/nearclip/nearclip-core/internal/infrastructure/influxdb"
	"github.com/nearclip/nearclip-core/internal/lifecycle"
)

type recordingWriter struct {
	transitions []influxdb.TransitionPoint
	battery     map[string]int
}

func (w *recordingWriter) WriteTransition(p influxdb.TransitionPoint) {
	w.transitions = append(w.transitions, p)
}

func (w *recordingWriter) WriteBattery(id string, level int, _ time.Time) {
	if w.battery == nil {
		w.battery = make(map[string]int)
	}
	w.battery[id] = level
}

func TestTransitionRecorder(t *testing.T) {
	w := &recordingWriter{}
	r := newTransitionRecorder(w)
	level := 64

	r.Record(lifecycle.Transition{
		DeviceID: "mac-1",
		From:     device.StatusConnecting,
		To:       device.StatusError,
		Cause:    lifecycle.CauseConnect,
		At:       testNow,
		Error:    "timeout",
		Device:   device.Device{ID: "mac-1", Type: device.TypeMac, BatteryLevel: &level},
	})
	r.Record(lifecycle.Transition{
		DeviceID: "phone",
		From:     device.StatusDisconnected,
		To:       device.StatusConnecting,
		Cause:    lifecycle.CauseConnect,
		At:       testNow,
		Device:   device.Device{ID: "phone", Type: device.TypeAndroid},
	})

	if len(w.transitions) != 2 {
		t.Fatalf("transitions = %d, want 2", len(w.transitions))
	}
	got := w.transitions[0]
	want := influxdb.TransitionPoint{
		DeviceID:   "mac-1",
		DeviceType: "MAC",
		From:       "CONNECTING",
		To:         "ERROR",
		Cause:      "connect",
		Error:      "timeout",
		At:         testNow,
	}
	if got != want {
		t.Errorf("point = %+v, want %+v", got, want)
	}

	if len(w.battery) != 1 || w.battery["mac-1"] != 64 {
		t.Errorf("battery = %v, want map[mac-1:64]", w.battery)
	}
}
