package raceio

import (
	"context"
	"sync"
)

// MemoryRace is an in-memory implementation of RaceContext, RaceData,
// UIEmitter, EventBus, Translator, and TimeBase, used by cluster package
// tests and by the demo binary when no SQL backend is configured.
type MemoryRace struct {
	mu sync.Mutex

	status           RaceStatus
	startTimeEpochMs int64
	currentHeat      int
	profile          FrequencyProfile
	hasProfile       bool
	activeLaps       map[int][]Lap
	splits           map[[2]int][]Split // key: {node, lapCount}
	pilots           map[[2]int]int     // key: {heat, node} -> pilotID
	timeFormat       string

	// recorded observations, inspectable by tests
	ConnectChanges []ConnectChange
	SplitInfos     []SplitInfo
	BeepTones      []BeepTone
	Triggered      []Trigger
}

type ConnectChange struct {
	SecondaryID int
	Connected   bool
}

type SplitInfo struct {
	PilotID     int
	SplitID     int
	SplitTimeMs int64
}

type BeepTone struct {
	DurationMs, FrequencyHz, VolumePct int
	Tone                               ToneType
}

type Trigger struct {
	Name string
	Args map[string]any
}

// NewMemoryRace creates an empty MemoryRace in StatusReady.
func NewMemoryRace() *MemoryRace {
	return &MemoryRace{
		status:     StatusReady,
		activeLaps: make(map[int][]Lap),
		splits:     make(map[[2]int][]Split),
		pilots:     make(map[[2]int]int),
		timeFormat: "%M:%S.%f",
	}
}

// --- test setup helpers ---

func (m *MemoryRace) SetStatus(s RaceStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
}

func (m *MemoryRace) SetStartTime(epochMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startTimeEpochMs = epochMs
}

func (m *MemoryRace) SetCurrentHeat(heat int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentHeat = heat
}

func (m *MemoryRace) SetProfile(p FrequencyProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = p
	m.hasProfile = true
}

func (m *MemoryRace) SetPilot(heat, node, pilotID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pilots[[2]int{heat, node}] = pilotID
}

func (m *MemoryRace) AddLap(node int, lapTimeStampMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeLaps[node] = append(m.activeLaps[node], Lap{LapTimeStamp: lapTimeStampMs})
}

// --- RaceContext ---

func (m *MemoryRace) Status() RaceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *MemoryRace) StartTimeEpochMs() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startTimeEpochMs
}

func (m *MemoryRace) CurrentHeat() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentHeat
}

func (m *MemoryRace) Profile() (FrequencyProfile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile, m.hasProfile
}

func (m *MemoryRace) ActiveLaps() map[int][]Lap {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int][]Lap, len(m.activeLaps))
	for k, v := range m.activeLaps {
		cp := make([]Lap, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// --- RaceData ---

func (m *MemoryRace) PilotFromHeatNode(_ context.Context, heat, node int) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.pilots[[2]int{heat, node}]
	return id, ok
}

func (m *MemoryRace) LapSplits(_ context.Context, node, lapCount int) ([]Split, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.splits[[2]int{node, lapCount}]
	out := make([]Split, len(existing))
	copy(out, existing)
	return out, nil
}

func (m *MemoryRace) AddLapSplit(_ context.Context, node, lapCount int, rec Split) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]int{node, lapCount}
	m.splits[key] = append(m.splits[key], rec)
	return nil
}

func (m *MemoryRace) TimeFormat(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeFormat, nil
}

// --- UIEmitter ---

func (m *MemoryRace) EmitClusterConnectChange(secondaryID int, connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConnectChanges = append(m.ConnectChanges, ConnectChange{secondaryID, connected})
}

func (m *MemoryRace) EmitSplitPassInfo(pilotID, splitID int, splitTimeMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SplitInfos = append(m.SplitInfos, SplitInfo{pilotID, splitID, splitTimeMs})
}

func (m *MemoryRace) EmitPlayBeepTone(durationMs, frequencyHz, volumePct int, tone ToneType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BeepTones = append(m.BeepTones, BeepTone{durationMs, frequencyHz, volumePct, tone})
}

// --- EventBus ---

func (m *MemoryRace) Trigger(_ context.Context, name string, args map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Triggered = append(m.Triggered, Trigger{name, args})
}

// --- Translator ---

func (m *MemoryRace) Translate(key string) string {
	return key
}

// --- TimeBase ---

// MonotonicToEpochMs assumes the monotonic clock and the epoch clock share
// an origin, which is sufficient for deterministic tests that construct
// both in the same units.
func (m *MemoryRace) MonotonicToEpochMs(monotonicSeconds float64) int64 {
	return int64(monotonicSeconds * 1000)
}
