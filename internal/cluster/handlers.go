package cluster

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// onCheckSecondaryResponse handles the reply to a check_secondary_query:
// it measures round-trip latency and, when the secondary echoes back its own
// clock, updates the clock-skew median. Whenever a query is outstanding it
// also refreshes lastContactTime and numContacts; a response arriving with
// no query outstanding is ignored.
func (s *Session) onCheckSecondaryResponse(data map[string]any) {
	now := time.Now()

	s.mu.Lock()
	if s.lastCheckQueryTime.IsZero() {
		s.mu.Unlock()
		return
	}
	transit := now.Sub(s.lastCheckQueryTime)
	s.latency.Add(int(transit.Round(time.Millisecond).Milliseconds()))

	if raw, ok := data["timestamp"]; ok {
		if secondaryMs, ok := toInt64(raw); ok {
			midpoint := s.lastCheckQueryTime.Add(transit / 2)
			localMs := int64(0)
			if s.clock != nil {
				localMs = s.clock.MonotonicToEpochMs(float64(midpoint.UnixNano()) / 1e9)
			}
			s.skew.Insert(int(secondaryMs - localMs))
			s.timeDiffMedianMs = s.skew.Median()
		}
	}

	s.lastContactTime = now
	s.numContacts++
	s.mu.Unlock()
}

// onJoinClusterResponse parses the secondary's server_info payload,
// detecting process restarts (a changed prog_start_epoch), then
// acknowledges the message. release_version is decoded but not compared
// with this process's version. A missing or unparseable server_info is
// logged and the message is not acknowledged.
func (s *Session) onJoinClusterResponse(data map[string]any) {
	raw, ok := data["server_info"]
	if !ok {
		slog.Warn("join_cluster_response missing server_info", "secondary_id", s.cfg.Index)
		return
	}

	var info struct {
		ProgStartEpoch float64 `json:"prog_start_epoch"`
		ReleaseVersion string  `json:"release_version"`
	}

	switch v := raw.(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &info); err != nil {
			slog.Error("failed to parse join_cluster_response server_info", "secondary_id", s.cfg.Index, "error", err)
			return
		}
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			slog.Error("failed to remarshal join_cluster_response server_info", "secondary_id", s.cfg.Index, "error", err)
			return
		}
		if err := json.Unmarshal(b, &info); err != nil {
			slog.Error("failed to parse join_cluster_response server_info", "secondary_id", s.cfg.Index, "error", err)
			return
		}
	default:
		slog.Warn("join_cluster_response server_info has unexpected type", "secondary_id", s.cfg.Index)
		return
	}

	s.mu.Lock()
	restarted := s.haveProgStart && info.ProgStartEpoch != s.progStartEpoch
	s.progStartEpoch = info.ProgStartEpoch
	s.haveProgStart = true
	if restarted {
		s.skew.Reset()
	}
	s.mu.Unlock()

	if restarted {
		slog.Info("secondary process restart detected, resetting clock-skew window",
			"secondary_id", s.cfg.Index, "prog_start_epoch", info.ProgStartEpoch)
	}

	ctx := context.Background()
	ack := map[string]any{"messageType": "join_cluster_response"}
	if err := s.transport.Emit(ctx, "cluster_message_ack", ack); err != nil {
		slog.Error("failed to ack join_cluster_response", "secondary_id", s.cfg.Index, "error", err)
	}
}

// toInt64 coerces a JSON-decoded numeric value (float64 or json.Number) to
// an int64.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}
