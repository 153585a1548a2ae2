package cluster

import (
	"fmt"
	"math"
	"time"

	"github.com/rotorhazard/clustercoord/internal/raceio"
)

// SecondaryStatus is the read-only projection of one secondary's Session
// state, used by the health server and any UI status view (§6).
type SecondaryStatus struct {
	Index           int     `json:"index"`
	Address         string  `json:"address"`
	Mode            string  `json:"mode"` // "S", "M", or "A"
	MinLatencyMs    int     `json:"min_latency_ms"`
	AvgLatencyMs    int     `json:"avg_latency_ms"`
	MaxLatencyMs    int     `json:"max_latency_ms"`
	LastLatencyMs   int     `json:"last_latency_ms"`
	NumDisconnects  int     `json:"num_disconnects"`
	NumContacts     int     `json:"num_contacts"`
	TimeDiffMs      int     `json:"time_diff_ms"`
	UpTimeSecs      float64 `json:"up_time_secs"`
	DownTimeSecs    float64 `json:"down_time_secs"`
	AvailabilityPct float64 `json:"availability_pct"`
	LastContact     string  `json:"last_contact"`
	RetryAvailable  bool    `json:"retry_available"`
}

func modeIndicator(m Role) string {
	switch m {
	case RoleMirror:
		return "M"
	case RoleAction:
		return "A"
	default:
		return "S"
	}
}

// snapshotStatus builds this Session's SecondaryStatus projection as of now.
func (s *Session) snapshotStatus(tr raceio.Translator) SecondaryStatus {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	upTime := s.totalUpTimeSecs
	if !s.firstContactTime.IsZero() && !s.lastContactTime.IsZero() {
		upTime += now.Sub(s.firstContactTime).Seconds()
	}
	downTime := s.totalDownTimeSecs
	if s.lastContactTime.IsZero() && !s.startConnectTime.IsZero() {
		downTime += now.Sub(s.startConnectTime).Seconds()
	}

	availability := 0.0
	if total := upTime + downTime; total > 0 {
		availability = math.Round((upTime/total)*1000) / 10
	}

	status := SecondaryStatus{
		Index:           s.cfg.Index,
		Address:         s.cfg.Address,
		Mode:            modeIndicator(s.cfg.Mode),
		MinLatencyMs:    s.latency.Min(),
		AvgLatencyMs:    s.latency.IntAvg(),
		MaxLatencyMs:    s.latency.Max(),
		LastLatencyMs:   s.latency.Last(),
		NumDisconnects:  s.numDisconnects,
		NumContacts:     s.numContacts,
		TimeDiffMs:      s.timeDiffMedianMs,
		UpTimeSecs:      upTime,
		DownTimeSecs:    downTime,
		AvailabilityPct: availability,
	}

	switch {
	case s.state == StateStopped:
		status.LastContact = translate(tr, "cluster.retry_available")
		status.RetryAvailable = true
	case !s.lastContactTime.IsZero():
		status.LastContact = fmt.Sprintf("%d", int(now.Sub(s.lastContactTime).Seconds()))
	case s.everConnected:
		status.LastContact = translate(tr, "cluster.connection_lost")
	default:
		status.LastContact = translate(tr, "cluster.never_connected")
	}

	return status
}

func translate(tr raceio.Translator, key string) string {
	if tr == nil {
		return key
	}
	return tr.Translate(key)
}

// GetClusterStatusInfo returns the ordered status projection for every
// registered secondary, suitable for JSON encoding by the health server.
func (cns *ClusterNodeSet) GetClusterStatusInfo(tr raceio.Translator) []SecondaryStatus {
	sessions := cns.Sessions()
	out := make([]SecondaryStatus, len(sessions))
	for i, s := range sessions {
		out[i] = s.snapshotStatus(tr)
	}
	return out
}
