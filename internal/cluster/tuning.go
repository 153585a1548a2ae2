package cluster

import (
	"fmt"
	"time"
)

// Tuning holds the operational constants governing every Session's latency/
// skew tracking, heartbeat, and reconnect pacing (§6), exposed here (rather
// than buried as package constants) so a deployment's config.ClusterFile can
// adjust them without recompiling.
type Tuning struct {
	// LatencyWindow is the sample-window size for the round-trip latency
	// averager.
	LatencyWindow int `mapstructure:"latency_window"`
	// SkewWindow is the sample-window size for the time-diff running
	// median.
	SkewWindow int `mapstructure:"skew_window"`
	// SkewCorrectionThresholdMs is the minimum |skew| that causes
	// DoClusterRaceStart to latch a non-zero time correction.
	SkewCorrectionThresholdMs int `mapstructure:"skew_correction_threshold_ms"`
	// ForcedDisconnectThresholdMs bounds how long a connected Session waits
	// for a check_secondary_response before forcing a disconnect.
	ForcedDisconnectThresholdMs int `mapstructure:"forced_disconnect_threshold_ms"`
	// SlowRetryIntervalSecs paces reconnect attempts once a Session has
	// connected at least once but is currently down past its query
	// timeout.
	SlowRetryIntervalSecs int `mapstructure:"slow_retry_interval_secs"`
	// WorkerTickSecs is the Session worker's base polling interval.
	WorkerTickSecs int `mapstructure:"worker_tick_secs"`
	// TransportTimeoutSecs bounds a single outbound emit/connect call.
	TransportTimeoutSecs int `mapstructure:"transport_timeout_secs"`
}

// DefaultTuning returns the constants documented in §6/§4.3/§4.4.
func DefaultTuning() Tuning {
	return Tuning{
		LatencyWindow:               30,
		SkewWindow:                  30,
		SkewCorrectionThresholdMs:   250,
		ForcedDisconnectThresholdMs: 3900,
		SlowRetryIntervalSecs:       30,
		WorkerTickSecs:              1,
		TransportTimeoutSecs:        1,
	}
}

// ApplyDefaults fills in any zero-valued or negative field with its documented default,
// letting a cluster file override only the constants it cares about.
func (t *Tuning) ApplyDefaults() {
	d := DefaultTuning()
	if t.LatencyWindow <= 0 {
		t.LatencyWindow = d.LatencyWindow
	}
	if t.SkewWindow <= 0 {
		t.SkewWindow = d.SkewWindow
	}
	if t.SkewCorrectionThresholdMs <= 0 {
		t.SkewCorrectionThresholdMs = d.SkewCorrectionThresholdMs
	}
	if t.ForcedDisconnectThresholdMs <= 0 {
		t.ForcedDisconnectThresholdMs = d.ForcedDisconnectThresholdMs
	}
	if t.SlowRetryIntervalSecs <= 0 {
		t.SlowRetryIntervalSecs = d.SlowRetryIntervalSecs
	}
	if t.WorkerTickSecs <= 0 {
		t.WorkerTickSecs = d.WorkerTickSecs
	}
	if t.TransportTimeoutSecs <= 0 {
		t.TransportTimeoutSecs = d.TransportTimeoutSecs
	}
}

// Validate checks Tuning's fields for valid ranges.
func (t *Tuning) Validate() error {
	if t.LatencyWindow < 1 {
		return fmt.Errorf("tuning.latency_window must be >= 1, got %d", t.LatencyWindow)
	}
	if t.SkewWindow < 1 {
		return fmt.Errorf("tuning.skew_window must be >= 1, got %d", t.SkewWindow)
	}
	if t.SkewCorrectionThresholdMs < 0 {
		return fmt.Errorf("tuning.skew_correction_threshold_ms must be >= 0, got %d", t.SkewCorrectionThresholdMs)
	}
	if t.ForcedDisconnectThresholdMs < 1 {
		return fmt.Errorf("tuning.forced_disconnect_threshold_ms must be >= 1, got %d", t.ForcedDisconnectThresholdMs)
	}
	if t.SlowRetryIntervalSecs < 1 {
		return fmt.Errorf("tuning.slow_retry_interval_secs must be >= 1, got %d", t.SlowRetryIntervalSecs)
	}
	if t.WorkerTickSecs < 1 {
		return fmt.Errorf("tuning.worker_tick_secs must be >= 1, got %d", t.WorkerTickSecs)
	}
	if t.TransportTimeoutSecs < 1 {
		return fmt.Errorf("tuning.transport_timeout_secs must be >= 1, got %d", t.TransportTimeoutSecs)
	}
	return nil
}

func (t Tuning) forcedDisconnectThreshold() time.Duration {
	return time.Duration(t.ForcedDisconnectThresholdMs) * time.Millisecond
}

func (t Tuning) slowRetryInterval() time.Duration {
	return time.Duration(t.SlowRetryIntervalSecs) * time.Second
}

func (t Tuning) workerTick() time.Duration {
	return time.Duration(t.WorkerTickSecs) * time.Second
}
