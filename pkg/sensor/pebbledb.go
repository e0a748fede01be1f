package sensor

import (
	"context"
	"time"

	"chatledger/pkg/logger"
	"chatledger/pkg/store"
	"chatledger/pkg/telemetry"
)

// MonitorConfig controls thresholds and intervals for the pebble monitor.
type MonitorConfig struct {
	PollInterval time.Duration

	WALHighBytes uint64
	WALLowBytes  uint64

	DiskHighPct int
	DiskLowPct  int

	// hysteresis window to consider recovery
	RecoveryWindow time.Duration
}

// DefaultMonitorConfig returns sensible defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval:   500 * time.Millisecond,
		WALHighBytes:   1 << 30, // 1 GiB
		WALLowBytes:    700 << 20,
		DiskHighPct:    80,
		DiskLowPct:     60,
		RecoveryWindow: 5 * time.Second,
	}
}

// StartPebbleMonitor starts a background monitor that watches Pebble WAL
// and disk pressure. Under pressure it drops the telemetry sample rate and
// emits throttle requests; on recovery it restores the original rate.
// Returns a function to stop the monitor.
func StartPebbleMonitor(ctx context.Context, st *store.Store, s *Sensor, cfg MonitorConfig) context.CancelFunc {
	if cfg.PollInterval <= 0 {
		cfg = DefaultMonitorConfig()
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		ms := newMonitorState(cfg)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m := st.GetPebbleMetrics()
				hw := s.Snapshot()
				diskUtil := 0
				if hw.DiskTotal > 0 {
					used := hw.DiskTotal - hw.DiskFree
					diskUtil = int((used * 100) / hw.DiskTotal)
				}
				ms.step(m.WALBytes, diskUtil, time.Now(), s.SendThrottle)
			}
		}
	}()
	return cancel
}

// monitorState tracks the throttle phase and the sample rate captured when
// leaving the normal phase, so recovery restores the configured rate
// rather than a hard-coded one.
type monitorState struct {
	cfg          MonitorConfig
	phase        string
	baseRate     float64
	lastCritical time.Time
}

func newMonitorState(cfg MonitorConfig) *monitorState {
	return &monitorState{cfg: cfg, phase: "normal"}
}

func (ms *monitorState) step(walBytes uint64, diskUtil int, now time.Time, throttle func(ThrottleRequest)) {
	if walBytes >= ms.cfg.WALHighBytes || diskUtil >= ms.cfg.DiskHighPct {
		if ms.phase != "critical" {
			if ms.phase == "normal" {
				ms.baseRate = telemetry.SampleRate()
			}
			logger.Warn("pebble_monitor_critical", "wal_bytes", walBytes, "disk_util", diskUtil)
			telemetry.SetSampleRate(0)
			throttle(ThrottleRequest{Source: "pebble_monitor", Reason: "wal_or_disk_high", Severity: 1.0})
			ms.phase = "critical"
		}
		ms.lastCritical = now
		return
	}

	if ms.phase == "critical" {
		if now.Sub(ms.lastCritical) > ms.cfg.RecoveryWindow && walBytes <= ms.cfg.WALLowBytes && diskUtil <= ms.cfg.DiskLowPct {
			logger.Info("pebble_monitor_recovered")
			telemetry.SetSampleRate(ms.baseRate)
			throttle(ThrottleRequest{Source: "pebble_monitor", Reason: "recovered", Severity: 0})
			ms.phase = "normal"
		}
		return
	}

	if walBytes >= ms.cfg.WALLowBytes {
		if ms.phase != "degraded" {
			ms.baseRate = telemetry.SampleRate()
			logger.Warn("pebble_monitor_degraded", "wal_bytes", walBytes, "disk_util", diskUtil)
			telemetry.SetSampleRate(ms.baseRate / 10)
			throttle(ThrottleRequest{Source: "pebble_monitor", Reason: "wal_high", Severity: 0.6})
			ms.phase = "degraded"
		}
		return
	}

	if ms.phase == "degraded" && walBytes < ms.cfg.WALLowBytes && diskUtil < ms.cfg.DiskLowPct {
		logger.Info("pebble_monitor_normal")
		telemetry.SetSampleRate(ms.baseRate)
		ms.phase = "normal"
	}
}
