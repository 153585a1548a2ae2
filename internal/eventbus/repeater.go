package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
)

// ClusterEmitter is the narrow slice of ClusterNodeSet the Repeater needs,
// mirroring the narrow-collaborator-interface style of
// internal/health.ConnectionManagerHealth.
type ClusterEmitter interface {
	HasRecordEventsSecondaries() bool
	EmitEventTrigger(ctx context.Context, evtName string, evtArgsJSON string)
}

// Repeater subscribes to every event published on a Bus and re-broadcasts it
// as a cluster_event_trigger to every secondary that opted in to recording
// events, per §4.5.
type Repeater struct {
	cluster ClusterEmitter
}

// NewRepeater creates a Repeater and registers it on bus. The caller retains
// ownership of bus; NewRepeater never closes or replaces it.
func NewRepeater(bus *Bus, cluster ClusterEmitter) *Repeater {
	r := &Repeater{cluster: cluster}
	bus.OnAny(r.onEvent)
	return r
}

func (r *Repeater) onEvent(ctx context.Context, name string, args map[string]any) {
	if !r.cluster.HasRecordEventsSecondaries() {
		return
	}
	r.cluster.EmitEventTrigger(ctx, name, marshalArgs(name, args))
}

// marshalArgs serialises event args to JSON, falling back to a per-key
// encoding when one or more values aren't directly JSON-serialisable (e.g.
// a channel): each such value is replaced by the sentinel string
// "<not serializable>", so a single bad argument never drops the whole event.
func marshalArgs(name string, args map[string]any) string {
	if b, err := json.Marshal(args); err == nil {
		return string(b)
	}

	safe := make(map[string]any, len(args))
	for k, v := range args {
		if b, err := json.Marshal(v); err == nil {
			var decoded any
			if err := json.Unmarshal(b, &decoded); err == nil {
				safe[k] = decoded
				continue
			}
		}
		slog.Debug("event arg not JSON-serialisable, using sentinel string", "event", name, "key", k)
		safe[k] = "<not serializable>"
	}

	b, err := json.Marshal(safe)
	if err != nil {
		slog.Error("failed to serialise event args even with fallback", "event", name, "error", err)
		return "{}"
	}
	return string(b)
}
