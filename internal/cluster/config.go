// Package cluster implements the cluster coordinator: the set of secondary
// timer sessions a primary race-timing server drives over long-lived
// bidirectional event sessions, plus the fan-out and status projection over
// that set.
package cluster

import "fmt"

// Role is the operating mode of a secondary timer.
type Role string

const (
	RoleSplit  Role = "split"
	RoleMirror Role = "mirror"
	RoleAction Role = "action"
)

// ToneConfig describes the local beep tone an action secondary plays when it
// honours a pass.
type ToneConfig struct {
	DurationMs  int    `mapstructure:"tone_duration_ms"`
	FrequencyHz int    `mapstructure:"tone_frequency_hz"`
	VolumePct   int    `mapstructure:"tone_volume_pct"`
	Type        string `mapstructure:"tone_type"`
}

// SecondaryConfig defines one secondary timer's identity and configuration.
// Index is this secondary's 0-based position in the cluster and doubles as
// the split id it reports when acting as a split timer.
type SecondaryConfig struct {
	Index   int    `mapstructure:"-"`
	Address string `mapstructure:"address" validate:"required"`
	Mode    Role   `mapstructure:"mode"`

	RecordEvents  *bool   `mapstructure:"record_events"`
	QueryInterval int     `mapstructure:"query_interval_secs"`
	QueryTimeout  int     `mapstructure:"query_timeout_secs"`
	DistanceM     float64 `mapstructure:"distance_m"`

	// Action-mode only.
	MinRepeatSecs int        `mapstructure:"min_repeat_secs"`
	Event         string     `mapstructure:"event"`
	Effect        string     `mapstructure:"effect"`
	Text          string     `mapstructure:"text"`
	Tone          ToneConfig `mapstructure:"tone"`
}

// IsMirror reports whether this secondary only mirrors events and never
// contributes splits.
func (c *SecondaryConfig) IsMirror() bool { return c.Mode == RoleMirror }

// IsAction reports whether this secondary is an action timer.
func (c *SecondaryConfig) IsAction() bool { return c.Mode == RoleAction }

// RecordsEvents reports whether this secondary has opted in to receiving
// the primary's event-bus traffic verbatim. Defaults to true for mirrors
// and false otherwise, matching the original cluster coordinator.
func (c *SecondaryConfig) RecordsEvents() bool {
	if c.RecordEvents != nil {
		return *c.RecordEvents
	}
	return c.IsMirror()
}

// FirstQueryIntervalSecs returns the interval used for the very first
// liveness query of a connected episode: the smaller of 3 seconds and the
// steady-state query interval.
func (c *SecondaryConfig) FirstQueryIntervalSecs() int {
	if c.QueryInterval >= 3 {
		return 3
	}
	return c.QueryInterval
}

// ApplyDefaults fills in zero-valued fields with the documented defaults.
// It must run once, after the config is decoded and before the secondary's
// session is constructed.
func (c *SecondaryConfig) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = RoleSplit
	}
	if c.QueryInterval <= 0 {
		c.QueryInterval = 10
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 300
	}
	if c.MinRepeatSecs <= 0 {
		c.MinRepeatSecs = 10
	}
	if c.Event == "" {
		c.Event = fmt.Sprintf("SecondaryActionTimer_%d", c.Index+1)
	}
	if c.Tone.VolumePct == 0 {
		c.Tone.VolumePct = 100
	}
	if c.Tone.Type == "" {
		c.Tone.Type = "square"
	}
}

// Validate checks a SecondaryConfig for required fields and valid ranges.
func (c *SecondaryConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("secondary %d: address is required", c.Index)
	}
	switch c.Mode {
	case RoleSplit, RoleMirror, RoleAction:
	default:
		return fmt.Errorf("secondary %d: invalid mode %q", c.Index, c.Mode)
	}
	if c.QueryInterval < 1 {
		return fmt.Errorf("secondary %d: query_interval_secs must be >= 1, got %d", c.Index, c.QueryInterval)
	}
	return nil
}

// DistanceMm returns the gate distance in millimetres, used by the split
// speed calculation (distance / split_time).
func (c *SecondaryConfig) DistanceMm() float64 {
	return c.DistanceM * 1000.0
}
