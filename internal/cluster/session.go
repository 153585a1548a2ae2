package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rotorhazard/clustercoord/internal/archive"
	"github.com/rotorhazard/clustercoord/internal/raceio"
	"github.com/rotorhazard/clustercoord/internal/report"
	"github.com/rotorhazard/clustercoord/internal/reporting"
	"github.com/rotorhazard/clustercoord/internal/stat"
)

const (
	// exceptionBackoff is how long the worker sleeps after recovering from
	// an unexpected panic, to avoid a tight failure loop.
	exceptionBackoff = 9 * time.Second

	// disconnectGraceTimeout bounds how long a forced disconnect waits for
	// the transport to confirm before the Session declares it disconnected
	// itself.
	disconnectGraceTimeout = 1 * time.Second
)

// Session owns one secondary timer's connection lifecycle, heartbeat
// tracking, clock-skew estimation, and split/action ingestion. One Session
// runs per configured secondary for the coordinator's lifetime.
type Session struct {
	cfg       SecondaryConfig
	transport Transport
	race      raceio.RaceContext
	data      raceio.RaceData
	ui        raceio.UIEmitter
	bus       raceio.EventBus
	tr        raceio.Translator
	clock     raceio.TimeBase
	breaker   *reporting.CircuitBreaker
	archiver  archive.Archive
	tuning    Tuning

	parent *ClusterNodeSet

	mu sync.Mutex

	state ConnectionState

	startConnectTime    time.Time
	firstContactTime    time.Time
	lastContactTime     time.Time // zero value means disconnected
	lastCheckQueryTime  time.Time
	nextConnectAttempt  time.Time
	freqsSentFlag       bool
	everConnected       bool
	warnedEmptySkewOnce bool

	numDisconnects          int
	numDisconnsDuringRace   int
	numContacts             int
	lastConnectError        string
	raceDisconnectStartedAt time.Time // zero unless numDisconnsDuringRace > 0

	latency          *stat.Averager
	skew             *stat.RunningMedian
	timeDiffMedianMs int
	timeCorrectionMs int

	progStartEpoch float64
	haveProgStart  bool

	totalUpTimeSecs   float64
	totalDownTimeSecs float64
	lastStateChange   time.Time

	actionPassTimes map[int]time.Time

	runningFlag bool
	cancel      context.CancelFunc
}

// Deps bundles the external collaborators a Session needs, generalising the
// narrow-interface dependency style of internal/health.ConnectionManagerHealth
// to the cluster package.
type Deps struct {
	Race  raceio.RaceContext
	Data  raceio.RaceData
	UI    raceio.UIEmitter
	Bus   raceio.EventBus
	Tr    raceio.Translator
	Clock raceio.TimeBase
	// Archiver persists a disconnect-episode report on reconnect. May be
	// nil, in which case episode archiving is skipped.
	Archiver archive.Archive
	// Tuning overrides the operational constants governing this Session.
	// Zero-valued and negative fields fall back to DefaultTuning's values.
	Tuning Tuning
}

// NewSession creates a Session for the given secondary configuration and
// transport. The transport's event handlers are registered here; the
// caller must not register its own handlers on the same transport.
func NewSession(cfg SecondaryConfig, transport Transport, deps Deps) *Session {
	tuning := deps.Tuning
	tuning.ApplyDefaults()

	now := time.Now()
	s := &Session{
		cfg:              cfg,
		transport:        transport,
		race:             deps.Race,
		data:             deps.Data,
		ui:               deps.UI,
		bus:              deps.Bus,
		tr:               deps.Tr,
		clock:            deps.Clock,
		archiver:         deps.Archiver,
		tuning:           tuning,
		breaker:          reporting.NewCircuitBreaker(5),
		state:            StateDisconnected,
		startConnectTime: now,
		lastStateChange:  now,
		latency:          stat.NewAveragerWithWindow(tuning.LatencyWindow),
		skew:             stat.NewRunningMedianWithWindow(tuning.SkewWindow),
		actionPassTimes:  make(map[int]time.Time),
	}

	transport.OnEvent("pass_record", s.onPassRecord)
	transport.OnEvent("check_secondary_response", s.onCheckSecondaryResponse)
	transport.OnEvent("join_cluster_response", s.onJoinClusterResponse)
	transport.OnDisconnect(s.onDisconnect)

	return s
}

// Start launches the Session's worker goroutine. The worker runs under a
// context derived from ctx, which Stop cancels; cancelling ctx also ends it.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.runningFlag {
		s.mu.Unlock()
		return
	}
	workerCtx, cancel := context.WithCancel(ctx)
	s.runningFlag = true
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(workerCtx)
}

// Stop clears runningFlag and cancels the worker's context. It does not
// disconnect the transport.
func (s *Session) Stop() {
	s.mu.Lock()
	s.runningFlag = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Retry restarts a Stopped session: runtime counters are reinitialised but
// configuration is preserved, matching retrySecondary's semantics.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return fmt.Errorf("secondary %d: cannot retry, not stopped (state=%s)", s.cfg.Index, s.state)
	}
	now := time.Now()
	s.state = StateDisconnected
	s.startConnectTime = now
	s.lastStateChange = now
	s.firstContactTime = time.Time{}
	s.lastContactTime = time.Time{}
	s.lastCheckQueryTime = time.Time{}
	s.nextConnectAttempt = time.Time{}
	s.freqsSentFlag = false
	s.everConnected = false
	s.numDisconnects = 0
	s.numDisconnsDuringRace = 0
	s.numContacts = 0
	s.latency = stat.NewAveragerWithWindow(s.tuning.LatencyWindow)
	s.skew = stat.NewRunningMedianWithWindow(s.tuning.SkewWindow)
	s.timeDiffMedianMs = 0
	s.timeCorrectionMs = 0
	s.haveProgStart = false
	s.totalUpTimeSecs = 0
	s.totalDownTimeSecs = 0
	s.actionPassTimes = make(map[int]time.Time)
	s.mu.Unlock()

	s.Start(ctx)
	return nil
}

// IsConnected reports whether lastContactTime is set, the invariant that
// defines connectedness throughout the Session.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lastContactTime.IsZero()
}

// State returns the Session's current connection state.
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// run is the Session's worker loop: one goroutine polling roughly every
// workerTick, responsible for connect pacing, the handshake, frequency
// push, and heartbeat/forced-disconnect logic. Errors are logged and never
// allowed to terminate the loop except via explicit Stop or the
// never-connected timeout.
func (s *Session) run(ctx context.Context) {
	defer s.logTerminal()

	ticker := time.NewTicker(s.tuning.workerTick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}

		s.mu.Lock()
		stopped := s.state == StateStopped || !s.runningFlag
		s.mu.Unlock()
		if stopped {
			return
		}
	}
}

func (s *Session) logTerminal() {
	slog.Info("secondary session worker exiting",
		"secondary_id", s.cfg.Index, "address", s.cfg.Address, "state", s.State())
}

// tick runs one iteration of the worker loop with panic recovery, matching
// the original worker's catch-log-sleep-resume discipline (see §7).
func (s *Session) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("secondary session worker panic recovered",
				"secondary_id", s.cfg.Index, "address", s.cfg.Address, "panic", r)
			time.Sleep(exceptionBackoff)
		}
	}()

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateDisconnected, StateConnecting:
		s.tickDisconnected(ctx)
	case StateConnected:
		s.tickConnected(ctx)
	}
}

func (s *Session) tickDisconnected(ctx context.Context) {
	s.mu.Lock()
	everConnected := s.everConnected
	racing := s.race != nil && (s.race.Status() == raceio.StatusStaging || s.race.Status() == raceio.StatusRacing)
	if !everConnected && racing {
		s.mu.Unlock()
		return
	}

	now := time.Now()
	if !s.nextConnectAttempt.IsZero() && now.Before(s.nextConnectAttempt) {
		s.mu.Unlock()
		return
	}

	beyondQueryTimeout := now.Sub(s.startConnectTime) > time.Duration(s.cfg.QueryTimeout)*time.Second

	if !everConnected && beyondQueryTimeout {
		s.state = StateStopped
		s.runningFlag = false
		s.mu.Unlock()
		slog.Info("secondary never connected, giving up",
			"secondary_id", s.cfg.Index, "address", s.cfg.Address,
			"query_timeout_secs", s.cfg.QueryTimeout)
		return
	}

	// Previously-connected secondaries retry at worker-tick pace until the
	// outage outlasts a query-timeout window, then back off to the slow
	// retry interval (§4.3).
	pace := s.tuning.workerTick()
	if everConnected && beyondQueryTimeout {
		pace = s.tuning.slowRetryInterval()
	}
	s.nextConnectAttempt = now.Add(pace)
	s.state = StateConnecting
	s.mu.Unlock()

	level := slog.LevelDebug
	if !everConnected {
		level = slog.LevelInfo
	}
	slog.Log(ctx, level, "connecting to secondary",
		"secondary_id", s.cfg.Index, "address", s.cfg.Address)

	if err := s.transport.Connect(ctx); err != nil {
		s.breaker.RecordFailure(err.Error())
		if s.breaker.ShouldAlert() {
			slog.Warn("secondary has failed repeated connect attempts",
				"secondary_id", s.cfg.Index, "address", s.cfg.Address,
				"failures", s.breaker.GetFailureCount())
		}
		s.mu.Lock()
		s.state = StateDisconnected
		s.lastConnectError = err.Error()
		s.mu.Unlock()
		return
	}
	s.breaker.RecordSuccess()

	s.handleConnect()
}

// emit sends a liveness-observing event: one whose successful delivery is
// evidence the secondary is still there, so it refreshes lastContactTime
// and numContacts the same way an inbound message does (§8). Acks and the
// check_secondary_query heartbeat are not liveness-observing in this sense
// and call s.transport.Emit directly instead.
func (s *Session) emit(ctx context.Context, event string, data map[string]any) error {
	err := s.transport.Emit(ctx, event, data)
	if err == nil {
		s.mu.Lock()
		s.lastContactTime = time.Now()
		s.numContacts++
		s.mu.Unlock()
	}
	return err
}

func (s *Session) tickConnected(ctx context.Context) {
	s.heartbeat(ctx)
	s.pushFrequencies(ctx)
}

// handleConnect runs the join-cluster handshake described in §4.3. A
// duplicate call while already connected only refreshes lastContactTime,
// matching the original's tolerance of a spurious second on_connect.
func (s *Session) handleConnect() {
	now := time.Now()

	s.mu.Lock()
	alreadyConnected := !s.lastContactTime.IsZero()
	s.lastContactTime = now
	if alreadyConnected {
		s.mu.Unlock()
		return
	}
	isReconnect := s.everConnected
	disconnectedAt := s.startConnectTime
	numDisconnects := s.numDisconnects
	timeDiffMedianMs := s.timeDiffMedianMs
	lastErr := s.lastConnectError
	if isReconnect {
		s.totalDownTimeSecs += now.Sub(disconnectedAt).Seconds()
	}
	s.firstContactTime = now
	s.everConnected = true
	s.state = StateConnected
	s.freqsSentFlag = false
	s.lastCheckQueryTime = time.Time{}
	s.mu.Unlock()

	if isReconnect && s.archiver != nil {
		go s.archiveDisconnectEpisode(disconnectedAt, now, numDisconnects, timeDiffMedianMs, lastErr)
	}

	ctx := context.Background()
	if err := s.emit(ctx, "join_cluster_ex", map[string]any{"mode": string(s.cfg.Mode)}); err != nil {
		slog.Error("failed to emit join_cluster_ex", "secondary_id", s.cfg.Index, "error", err)
	}

	if !s.cfg.IsMirror() && s.race != nil {
		switch s.race.Status() {
		case raceio.StatusStaging, raceio.StatusRacing:
			if err := s.emit(ctx, "stage_race", map[string]any{}); err != nil {
				slog.Error("failed to emit stage_race", "secondary_id", s.cfg.Index, "error", err)
			}
		}
	}

	if s.ui != nil {
		s.ui.EmitClusterConnectChange(s.cfg.Index, true)
	}

	slog.Info("secondary connected", "secondary_id", s.cfg.Index, "address", s.cfg.Address)
}

// onDisconnect handles both transport-reported and forced disconnects. A
// duplicate call while already disconnected is ignored, matching the
// original's tolerance of duplicate on_disconnect notifications.
func (s *Session) onDisconnect() {
	now := time.Now()

	s.mu.Lock()
	if s.lastContactTime.IsZero() && s.state != StateConnecting {
		s.mu.Unlock()
		slog.Debug("ignoring duplicate disconnect", "secondary_id", s.cfg.Index)
		return
	}
	if !s.firstContactTime.IsZero() {
		s.totalUpTimeSecs += now.Sub(s.firstContactTime).Seconds()
	}
	s.lastContactTime = time.Time{}
	s.lastCheckQueryTime = time.Time{}
	s.startConnectTime = now
	s.state = StateDisconnected
	s.numDisconnects++
	if s.numDisconnsDuringRace == 0 {
		s.raceDisconnectStartedAt = now
	}
	s.numDisconnsDuringRace++
	s.nextConnectAttempt = time.Time{}
	s.mu.Unlock()

	if s.ui != nil {
		s.ui.EmitClusterConnectChange(s.cfg.Index, false)
	}

	slog.Info("secondary disconnected",
		"secondary_id", s.cfg.Index, "address", s.cfg.Address)
}

// archiveRaceStopReportIfNeeded is called from ClusterNodeSet.DoClusterRaceStop
// for every secondary, per §10.5: if this secondary disconnected at least
// once during the just-finished race, a disconnect-episode report covering
// the whole race is archived, closed at the moment the race stopped rather
// than at an actual reconnect (the secondary may still be down).
func (s *Session) archiveRaceStopReportIfNeeded() {
	if s.archiver == nil {
		return
	}

	s.mu.Lock()
	disconnects := s.numDisconnsDuringRace
	disconnectedAt := s.raceDisconnectStartedAt
	timeDiffMedianMs := s.timeDiffMedianMs
	lastErr := s.lastConnectError
	s.mu.Unlock()

	if disconnects == 0 {
		return
	}

	go s.archiveDisconnectEpisode(disconnectedAt, time.Now(), disconnects, timeDiffMedianMs, lastErr)
}

// archiveDisconnectEpisode renders and persists a report for one disconnect
// span, ended either by a reconnect (from handleConnect) or by the race
// stopping (from archiveRaceStopReportIfNeeded). Both callers run it in its
// own goroutine so a slow archive backend never delays them.
func (s *Session) archiveDisconnectEpisode(disconnectedAt, reconnectedAt time.Time, numDisconnects, timeDiffMedianMs int, lastErr string) {
	episode := report.Episode{
		ID:               uuid.New().String(),
		SecondaryIndex:   s.cfg.Index,
		SecondaryAddress: s.cfg.Address,
		Mode:             string(s.cfg.Mode),
		DisconnectedAt:   disconnectedAt,
		ReconnectedAt:    reconnectedAt,
		NumDisconnects:   numDisconnects,
		TimeDiffMs:       timeDiffMedianMs,
		LastError:        lastErr,
	}

	episodeJSON, err := json.Marshal(episode)
	if err != nil {
		slog.Error("failed to marshal disconnect episode", "secondary_id", s.cfg.Index, "error", err)
		return
	}
	md := report.RenderMarkdown(episode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := s.archiver.SaveEpisode(ctx, episode.ID, &archive.EpisodeArtifacts{
		EpisodeJSON: episodeJSON,
		ReportMD:    md,
		ReportHTML:  report.RenderHTML(md),
	})
	if err != nil {
		slog.Error("failed to archive disconnect episode",
			"secondary_id", s.cfg.Index, "episode_id", episode.ID, "error", err)
		return
	}

	slog.Info("archived disconnect episode",
		"secondary_id", s.cfg.Index, "episode_id", episode.ID, "report_url", result.ReportURL)
}

// pushFrequencies emits one set_frequency per node the first time a
// split/action secondary connects in an episode, with a small yield between
// emits so the transport is never saturated.
func (s *Session) pushFrequencies(ctx context.Context) {
	s.mu.Lock()
	if s.freqsSentFlag || s.cfg.IsMirror() {
		s.mu.Unlock()
		return
	}
	s.freqsSentFlag = true
	s.mu.Unlock()

	if s.race == nil {
		return
	}
	profile, ok := s.race.Profile()
	if !ok {
		return
	}

	for node, freq := range profile.Frequencies {
		if err := s.emit(ctx, "set_frequency", map[string]any{"node": node, "frequency": freq}); err != nil {
			slog.Error("failed to push frequency", "secondary_id", s.cfg.Index, "node", node, "error", err)
			continue
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// heartbeat implements the liveness-query / forced-disconnect logic of
// §4.3. It never blocks past disconnectGraceTimeout.
func (s *Session) heartbeat(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	interval := time.Duration(s.cfg.QueryInterval) * time.Second
	firstInterval := time.Duration(s.cfg.FirstQueryIntervalSecs()) * time.Second

	queryDue := (now.After(s.lastContactTime.Add(interval)) && now.After(s.lastCheckQueryTime.Add(interval))) ||
		(s.lastCheckQueryTime.IsZero() && now.After(s.lastContactTime.Add(firstInterval)))

	if queryDue {
		s.lastCheckQueryTime = now
		s.mu.Unlock()

		ts := int64(0)
		if s.clock != nil {
			ts = s.clock.MonotonicToEpochMs(float64(now.UnixNano()) / 1e9)
		}
		if err := s.transport.Emit(ctx, "check_secondary_query", map[string]any{"timestamp": ts}); err != nil {
			slog.Debug("failed to emit check_secondary_query", "secondary_id", s.cfg.Index, "error", err)
		}
		return
	}

	queryInFlight := !s.lastCheckQueryTime.IsZero() && s.lastCheckQueryTime.After(s.lastContactTime)
	if !queryInFlight {
		s.mu.Unlock()
		return
	}

	overdue := now.Sub(s.lastCheckQueryTime) > s.tuning.forcedDisconnectThreshold()
	if !overdue {
		s.mu.Unlock()
		return
	}

	skewSamples := s.skew.Len()
	if skewSamples == 0 {
		if !s.warnedEmptySkewOnce {
			s.warnedEmptySkewOnce = true
			slog.Warn("secondary not responding to liveness query but has no skew samples yet; rebasing instead of disconnecting",
				"secondary_id", s.cfg.Index, "address", s.cfg.Address)
		}
		s.lastCheckQueryTime = now
		s.lastContactTime = now
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	slog.Warn("secondary unresponsive past forced-disconnect threshold, disconnecting",
		"secondary_id", s.cfg.Index, "address", s.cfg.Address)

	go func() {
		dctx, cancel := context.WithTimeout(context.Background(), disconnectGraceTimeout)
		defer cancel()
		_ = s.transport.Disconnect(dctx)
		if s.transport.Connected() {
			s.onDisconnect()
		}
	}()
}
