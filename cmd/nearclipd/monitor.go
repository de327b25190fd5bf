package main

import (
	"context"
	"time"

	"github.com/nearclip/nearclip-core/internal/device"
	"github.com/nearclip/nearclip-core/internal/infrastructure/influxdb"
	"github.com/nearclip/nearclip-core/internal/infrastructure/logging"
	"github.com/nearclip/nearclip-core/internal/lifecycle"
)

// defaultMonitorInterval is how often the catalog summary is reported.
const defaultMonitorInterval = time.Minute

type statsSource interface {
	Stats(ctx context.Context) (lifecycle.Stats, error)
}

type connectedLister interface {
	Connected(ctx context.Context) ([]device.Device, error)
}

type statsWriter interface {
	WriteRegistryStats(s influxdb.RegistryStats, at time.Time)
}

// monitor periodically records catalog stats and warns about connected
// devices that have not been seen for staleAfter.
type monitor struct {
	stats      statsSource
	devices    connectedLister
	telemetry  statsWriter // nil when InfluxDB is disabled
	staleAfter time.Duration
	interval   time.Duration
	log        *logging.Logger
	now        func() time.Time
}

// Run reports every interval until ctx is cancelled.
func (m *monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.report(ctx)
		}
	}
}

// report runs one monitoring pass. Failures are logged and retried on the
// next tick.
func (m *monitor) report(ctx context.Context) {
	now := m.now()

	stats, err := m.stats.Stats(ctx)
	if err != nil {
		m.log.Warn("computing registry stats", "error", err)
		return
	}
	m.log.Debug("registry stats",
		"total", stats.Total,
		"connected", stats.Connected,
		"failed", stats.Failed,
		"paired", stats.Paired,
	)
	if m.telemetry != nil {
		m.telemetry.WriteRegistryStats(influxdb.RegistryStats{
			Total:      stats.Total,
			Connected:  stats.Connected,
			Connecting: stats.Connecting,
			Pairing:    stats.Pairing,
			Failed:     stats.Failed,
			Paired:     stats.Paired,
		}, now)
	}

	if m.staleAfter <= 0 {
		return
	}
	connected, err := m.devices.Connected(ctx)
	if err != nil {
		m.log.Warn("listing connected devices", "error", err)
		return
	}
	for _, d := range connected {
		if d.IsStale(now, m.staleAfter) {
			m.log.Warn("connected device not seen recently",
				"device_id", d.ID,
				"last_seen", d.LastSeen,
			)
		}
	}
}
