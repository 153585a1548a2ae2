package cluster

import (
	"testing"

	"github.com/rotorhazard/clustercoord/internal/raceio"
)

func racingFixture(distanceM float64) (*raceio.MemoryRace, SecondaryConfig) {
	race := raceio.NewMemoryRace()
	race.SetStatus(raceio.StatusRacing)
	race.SetStartTime(1_000_000_000_000)
	race.SetCurrentHeat(0)
	race.SetPilot(0, 0, 7)
	race.AddLap(0, 0)

	cfg := SecondaryConfig{Index: 0, Address: "http://split-0", Mode: RoleSplit, DistanceM: distanceM}
	return race, cfg
}

func TestIngestSplitPass_HappyPath(t *testing.T) {
	race, cfg := racingFixture(10)
	s, ft := newTestSession(cfg, race)

	ft.triggerEvent("pass_record", map[string]any{"node": 0, "timestamp": int64(1_000_000_003_500)})

	splits, err := race.LapSplits(nil, 0, 0)
	if err != nil {
		t.Fatalf("LapSplits error: %v", err)
	}
	if len(splits) != 1 {
		t.Fatalf("expected 1 split recorded, got %d", len(splits))
	}
	got := splits[0]
	if got.SplitTime != 3500 {
		t.Errorf("SplitTime = %d, want 3500", got.SplitTime)
	}
	if got.SplitSpeed == nil {
		t.Fatalf("expected non-nil SplitSpeed")
	}
	if want := 10000.0 / 3500.0; *got.SplitSpeed < want-0.001 || *got.SplitSpeed > want+0.001 {
		t.Errorf("SplitSpeed = %v, want ~%v", *got.SplitSpeed, want)
	}

	if len(race.SplitInfos) != 1 {
		t.Fatalf("expected 1 split-pass UI notification, got %d", len(race.SplitInfos))
	}
	if race.SplitInfos[0].PilotID != 7 || race.SplitInfos[0].SplitID != 0 {
		t.Errorf("unexpected split info: %+v", race.SplitInfos[0])
	}

	ack, ok := ft.lastEmit("cluster_message_ack")
	if !ok {
		t.Fatalf("expected cluster_message_ack to be emitted")
	}
	if ack["messageType"] != "pass_record" {
		t.Errorf("ack messageType = %v, want pass_record", ack["messageType"])
	}
}

func TestIngestSplitPass_OutOfOrderIsDropped(t *testing.T) {
	race, cfg := racingFixture(10)
	s, ft := newTestSession(cfg, race)

	// Pre-populate an existing split with id 0 for this lap.
	if err := race.AddLapSplit(nil, 0, 0, raceio.Split{ID: 0, SplitTimeStamp: 3500, SplitTime: 3500}); err != nil {
		t.Fatalf("setup AddLapSplit: %v", err)
	}

	ft.triggerEvent("pass_record", map[string]any{"node": 0, "timestamp": int64(1_000_000_004_000)})

	splits, _ := race.LapSplits(nil, 0, 0)
	if len(splits) != 1 {
		t.Fatalf("expected split count to stay at 1 (out-of-order dropped), got %d", len(splits))
	}
	if len(race.SplitInfos) != 0 {
		t.Errorf("expected no split-pass UI notification for dropped record")
	}
	if _, ok := ft.lastEmit("cluster_message_ack"); !ok {
		t.Errorf("expected an ack to still be sent for the dropped record")
	}
	_ = s
}

func TestIngestSplitPass_ClockCorrectionApplied(t *testing.T) {
	race, cfg := racingFixture(10)
	s, ft := newTestSession(cfg, race)
	s.mu.Lock()
	s.timeCorrectionMs = 400
	s.mu.Unlock()

	ft.triggerEvent("pass_record", map[string]any{"node": 0, "timestamp": int64(1_000_000_002_400)})

	splits, _ := race.LapSplits(nil, 0, 0)
	if len(splits) != 1 {
		t.Fatalf("expected 1 split, got %d", len(splits))
	}
	if got, want := splits[0].SplitTime, int64(2000); got != want {
		t.Errorf("SplitTime = %d, want %d (2400 raw - 400 correction)", got, want)
	}
}

func TestIngestActionPass_Debounced(t *testing.T) {
	race := raceio.NewMemoryRace()
	race.SetStatus(raceio.StatusRacing)
	race.SetCurrentHeat(0)
	race.SetPilot(0, 0, 3)

	cfg := SecondaryConfig{
		Index: 0, Address: "http://action-0", Mode: RoleAction,
		MinRepeatSecs: 10, Effect: "bonk",
		Tone: ToneConfig{DurationMs: 200, FrequencyHz: 880, VolumePct: 100, Type: "square"},
	}
	_, ft := newTestSession(cfg, race)

	ft.triggerEvent("pass_record", map[string]any{"node": 0, "timestamp": int64(0)})
	ft.triggerEvent("pass_record", map[string]any{"node": 0, "timestamp": int64(0)})

	if got, want := len(race.BeepTones), 1; got != want {
		t.Errorf("beep tones fired = %d, want %d (second pass should be debounced)", got, want)
	}
	if got, want := len(race.Triggered), 1; got != want {
		t.Errorf("effect triggers fired = %d, want %d", got, want)
	}
	if got, want := ft.countEmits("cluster_message_ack"), 2; got != want {
		t.Errorf("acks sent = %d, want %d (both passes ack regardless of debounce)", got, want)
	}
}
