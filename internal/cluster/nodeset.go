package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rotorhazard/clustercoord/internal/raceio"
)

// ClusterNodeSet is the registry of every configured secondary's Session and
// the fan-out surface the rest of the primary server uses to talk to the
// cluster as a whole: broadcasts, split-only broadcasts, event-bus
// repeating, retry, and status projection.
type ClusterNodeSet struct {
	mu       sync.RWMutex
	sessions []*Session

	race raceio.RaceContext
}

// NewClusterNodeSet creates an empty node set. Use AddSecondary to register
// sessions before calling StartAll.
func NewClusterNodeSet(race raceio.RaceContext) *ClusterNodeSet {
	return &ClusterNodeSet{race: race}
}

// AddSecondary registers a Session, giving it a back-reference to this set.
func (cns *ClusterNodeSet) AddSecondary(s *Session) {
	cns.mu.Lock()
	defer cns.mu.Unlock()
	s.parent = cns
	cns.sessions = append(cns.sessions, s)
}

// Sessions returns a snapshot slice of every registered Session.
func (cns *ClusterNodeSet) Sessions() []*Session {
	cns.mu.RLock()
	defer cns.mu.RUnlock()
	out := make([]*Session, len(cns.sessions))
	copy(out, cns.sessions)
	return out
}

// HasSecondaries reports whether any secondaries are registered.
func (cns *ClusterNodeSet) HasSecondaries() bool {
	cns.mu.RLock()
	defer cns.mu.RUnlock()
	return len(cns.sessions) > 0
}

// HasRecordEventsSecondaries reports whether any registered secondary opted
// in to receiving event-bus traffic.
func (cns *ClusterNodeSet) HasRecordEventsSecondaries() bool {
	cns.mu.RLock()
	defer cns.mu.RUnlock()
	for _, s := range cns.sessions {
		if s.cfg.RecordsEvents() {
			return true
		}
	}
	return false
}

// IsSplitSecondaryAvailable reports whether any split-capable secondary
// (any non-mirror) is currently connected.
func (cns *ClusterNodeSet) IsSplitSecondaryAvailable() bool {
	cns.mu.RLock()
	defer cns.mu.RUnlock()
	for _, s := range cns.sessions {
		if !s.cfg.IsMirror() && s.IsConnected() {
			return true
		}
	}
	return false
}

// SecondaryForIndex returns the Session at a given 0-based index, or nil.
func (cns *ClusterNodeSet) SecondaryForIndex(index int) *Session {
	cns.mu.RLock()
	defer cns.mu.RUnlock()
	for _, s := range cns.sessions {
		if s.cfg.Index == index {
			return s
		}
	}
	return nil
}

// StartAll launches every registered Session's worker.
func (cns *ClusterNodeSet) StartAll(ctx context.Context) {
	cns.mu.RLock()
	defer cns.mu.RUnlock()
	for _, s := range cns.sessions {
		s.Start(ctx)
	}
}

// Shutdown stops every Session's worker. It does not wait for the workers
// to exit; callers that need that guarantee should track it externally, as
// the original design never blocks fan-out on any one secondary.
func (cns *ClusterNodeSet) Shutdown() {
	cns.mu.RLock()
	defer cns.mu.RUnlock()
	for _, s := range cns.sessions {
		s.Stop()
	}
}

// RetrySecondary restarts a Stopped secondary identified by its 0-based
// index. Returns an error if the secondary is unknown or not stopped.
func (cns *ClusterNodeSet) RetrySecondary(ctx context.Context, index int) error {
	s := cns.SecondaryForIndex(index)
	if s == nil {
		return fmt.Errorf("no secondary with index %d", index)
	}
	return s.Retry(ctx)
}

// emitParallel fans a call out to every Session in sessions, each in its own
// goroutine, so a wedged transport on one secondary does not delay delivery
// to the others. It returns only after every call has returned, so a wedged
// secondary does hold up the caller.
func emitParallel(sessions []*Session, fn func(*Session)) {
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			fn(s)
		}(s)
	}
	wg.Wait()
}

// Emit broadcasts a named event with the given payload to every registered
// secondary.
func (cns *ClusterNodeSet) Emit(ctx context.Context, event string, data map[string]any) {
	emitParallel(cns.Sessions(), func(s *Session) {
		if err := s.transport.Emit(ctx, event, data); err != nil {
			slog.Debug("cluster emit failed", "secondary_id", s.cfg.Index, "event", event, "error", err)
		}
	})
}

// EmitToSplits broadcasts a named event to every split-capable (non-mirror)
// secondary.
func (cns *ClusterNodeSet) EmitToSplits(ctx context.Context, event string, data map[string]any) {
	var targets []*Session
	for _, s := range cns.Sessions() {
		if !s.cfg.IsMirror() {
			targets = append(targets, s)
		}
	}
	emitParallel(targets, func(s *Session) {
		if err := s.transport.Emit(ctx, event, data); err != nil {
			slog.Debug("cluster emit-to-splits failed", "secondary_id", s.cfg.Index, "event", event, "error", err)
		}
	})
}

// EmitEventTrigger broadcasts a cluster_event_trigger to every secondary
// that opted in to receiving event-bus traffic, used by the event repeater
// (§4.5).
func (cns *ClusterNodeSet) EmitEventTrigger(ctx context.Context, evtName string, evtArgsJSON string) {
	var targets []*Session
	for _, s := range cns.Sessions() {
		if s.cfg.RecordsEvents() {
			targets = append(targets, s)
		}
	}
	payload := map[string]any{"evt_name": evtName, "evt_args": evtArgsJSON}
	emitParallel(targets, func(s *Session) {
		if err := s.transport.Emit(ctx, "cluster_event_trigger", payload); err != nil {
			slog.Debug("cluster event trigger failed", "secondary_id", s.cfg.Index, "event", evtName, "error", err)
		}
	})
}

// DoClusterRaceStart resets per-race disconnect counters and latches a
// clock correction for every connected secondary whose skew exceeds
// Tuning.SkewCorrectionThresholdMs, per §4.4.
func (cns *ClusterNodeSet) DoClusterRaceStart() {
	for _, s := range cns.Sessions() {
		s.mu.Lock()
		s.numDisconnsDuringRace = 0
		s.raceDisconnectStartedAt = time.Time{}
		if !s.lastContactTime.IsZero() {
			threshold := s.tuning.SkewCorrectionThresholdMs
			if s.timeDiffMedianMs > threshold || s.timeDiffMedianMs < -threshold {
				s.timeCorrectionMs = s.timeDiffMedianMs
			} else {
				s.timeCorrectionMs = 0
			}
		}
		s.mu.Unlock()
	}
}

// DoClusterRaceStop logs each secondary's final per-race status, a
// diagnostic aid for operators reviewing a completed race, and archives a
// disconnect-episode report (§10.5) for every secondary that disconnected
// at least once during the race.
func (cns *ClusterNodeSet) DoClusterRaceStop() {
	for _, s := range cns.Sessions() {
		s.mu.Lock()
		disconnects := s.numDisconnsDuringRace
		skew := s.timeDiffMedianMs
		s.mu.Unlock()
		slog.Info("secondary race-stop status",
			"secondary_id", s.cfg.Index, "address", s.cfg.Address,
			"disconnects_during_race", disconnects, "time_diff_ms", skew)

		s.archiveRaceStopReportIfNeeded()
	}
}
