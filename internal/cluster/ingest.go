package cluster

import (
	"context"
	"log/slog"
	"time"

	"github.com/rotorhazard/clustercoord/internal/raceio"
)

// onPassRecord handles an inbound pass_record event, dispatching to either
// split-timer ingestion (producing a lap split) or action-timer ingestion
// (triggering a local effect), according to the secondary's configured
// mode. A cluster_message_ack is always sent, even when the record is
// dropped, matching §4.3's ack-regardless-of-outcome contract.
func (s *Session) onPassRecord(data map[string]any) {
	now := time.Now()
	s.mu.Lock()
	s.lastContactTime = now
	s.numContacts++
	s.mu.Unlock()

	defer s.ackPassRecord(data)

	node, ok := toInt(data["node"])
	if !ok {
		slog.Warn("pass_record missing node", "secondary_id", s.cfg.Index)
		return
	}
	ts, ok := toInt64(data["timestamp"])
	if !ok {
		slog.Warn("pass_record missing timestamp", "secondary_id", s.cfg.Index, "node", node)
		return
	}

	if s.race == nil || s.race.Status() != raceio.StatusRacing {
		slog.Debug("dropping pass_record, race not in progress", "secondary_id", s.cfg.Index, "node", node)
		return
	}

	if s.cfg.IsAction() {
		s.ingestActionPass(node)
		return
	}
	s.ingestSplitPass(node, ts)
}

func (s *Session) ackPassRecord(data map[string]any) {
	ctx := context.Background()
	ack := map[string]any{"messageType": "pass_record", "messagePayload": data}
	if err := s.transport.Emit(ctx, "cluster_message_ack", ack); err != nil {
		slog.Error("failed to ack pass_record", "secondary_id", s.cfg.Index, "error", err)
	}
}

// ingestSplitPass implements the split-timer ingestion pipeline of §4.3:
// pilot resolution, gap detection against the last known split, ordering
// enforcement, clock correction, and split-time/speed computation.
func (s *Session) ingestSplitPass(node int, secondaryTs int64) {
	ctx := context.Background()

	heat := s.race.CurrentHeat()
	pilotID, ok := s.data.PilotFromHeatNode(ctx, heat, node)
	if !ok {
		slog.Debug("dropping pass_record, no pilot on node", "secondary_id", s.cfg.Index, "node", node)
		return
	}

	splitTs := secondaryTs - s.race.StartTimeEpochMs()

	laps := s.race.ActiveLaps()[node]
	if len(laps) == 0 {
		slog.Debug("dropping pass_record, no laps yet", "secondary_id", s.cfg.Index, "node", node)
		return
	}
	lapCount := len(laps) - 1
	if lapCount < 0 {
		lapCount = 0
	}
	lastLapTs := laps[len(laps)-1].LapTimeStamp

	splitID := s.cfg.Index

	existing, err := s.data.LapSplits(ctx, node, lapCount)
	if err != nil {
		slog.Error("failed to fetch lap splits", "secondary_id", s.cfg.Index, "node", node, "error", err)
		return
	}

	var lastSplitTs int64
	if len(existing) == 0 {
		if splitID > 0 {
			slog.Debug("split gap: no prior splits for lap but split id > 0",
				"secondary_id", s.cfg.Index, "node", node, "split_id", splitID)
		}
		lastSplitTs = lastLapTs
	} else {
		// §3/§9 Open Question: last_split_ts is the split_time_stamp of the
		// LAST element of the fetched split list, i.e. the most recently
		// recorded split for this lap, not necessarily the one with the
		// highest id.
		lastSplit := existing[len(existing)-1]
		if splitID > lastSplit.ID {
			if splitID > lastSplit.ID+1 {
				slog.Debug("split gap detected", "secondary_id", s.cfg.Index, "node", node,
					"last_split_id", lastSplit.ID, "split_id", splitID)
			}
			lastSplitTs = lastSplit.SplitTimeStamp
		} else {
			slog.Debug("dropping out-of-order split", "secondary_id", s.cfg.Index, "node", node,
				"last_split_id", lastSplit.ID, "split_id", splitID)
			return
		}
	}

	s.mu.Lock()
	correction := s.timeCorrectionMs
	s.mu.Unlock()
	splitTs -= int64(correction)

	splitTime := splitTs - lastSplitTs
	var splitSpeed *float64
	if dmm := s.cfg.DistanceMm(); dmm > 0 && splitTime > 0 {
		speed := dmm / float64(splitTime)
		splitSpeed = &speed
	}

	rec := raceio.Split{
		ID:             splitID,
		SplitTimeStamp: splitTs,
		SplitTime:      splitTime,
		SplitSpeed:     splitSpeed,
	}
	if err := s.data.AddLapSplit(ctx, node, lapCount, rec); err != nil {
		slog.Error("failed to persist lap split", "secondary_id", s.cfg.Index, "node", node, "error", err)
		return
	}

	if s.ui != nil {
		s.ui.EmitSplitPassInfo(pilotID, splitID, splitTime)
	}
}

// ingestActionPass implements the action-timer ingestion pipeline of §4.3:
// per-node debouncing followed by an optional beep tone and/or triggered
// event.
func (s *Session) ingestActionPass(node int) {
	ctx := context.Background()

	heat := s.race.CurrentHeat()
	pilotID, ok := s.data.PilotFromHeatNode(ctx, heat, node)
	if !ok {
		slog.Debug("dropping action pass, no pilot on node", "secondary_id", s.cfg.Index, "node", node)
		return
	}

	now := time.Now()
	s.mu.Lock()
	last, seen := s.actionPassTimes[node]
	if seen && now.Sub(last) < time.Duration(s.cfg.MinRepeatSecs)*time.Second {
		s.mu.Unlock()
		slog.Debug("dropping action pass, debounced", "secondary_id", s.cfg.Index, "node", node)
		return
	}
	s.actionPassTimes[node] = now
	s.mu.Unlock()

	if s.ui != nil && s.cfg.Tone.DurationMs > 0 && s.cfg.Tone.FrequencyHz > 0 && s.cfg.Tone.VolumePct > 0 {
		toneType := raceio.ToneSquare
		if s.cfg.Tone.Type == string(raceio.ToneSine) {
			toneType = raceio.ToneSine
		}
		s.ui.EmitPlayBeepTone(s.cfg.Tone.DurationMs, s.cfg.Tone.FrequencyHz, s.cfg.Tone.VolumePct, toneType)
	}

	if s.cfg.Effect != "" && s.bus != nil {
		s.bus.Trigger(ctx, s.cfg.Event, map[string]any{"pilot_id": pilotID})
	} else if s.cfg.Effect == "" {
		slog.Warn("action secondary has no effect configured", "secondary_id", s.cfg.Index)
	}
}

// toInt coerces a JSON-decoded numeric value to an int.
func toInt(v any) (int, bool) {
	n, ok := toInt64(v)
	if !ok {
		return 0, false
	}
	return int(n), true
}
