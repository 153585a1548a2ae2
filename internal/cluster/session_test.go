package cluster

import (
	"testing"

	"github.com/rotorhazard/clustercoord/internal/raceio"
)

func newTestSession(cfg SecondaryConfig, race *raceio.MemoryRace) (*Session, *fakeTransport) {
	cfg.ApplyDefaults()
	ft := newFakeTransport()
	s := NewSession(cfg, ft, Deps{
		Race:  race,
		Data:  race,
		UI:    race,
		Bus:   race,
		Tr:    race,
		Clock: race,
	})
	return s, ft
}

func TestHandleConnect_DuplicateIsIdempotent(t *testing.T) {
	race := raceio.NewMemoryRace()
	s, ft := newTestSession(SecondaryConfig{Index: 0, Address: "http://secondary-0", Mode: RoleSplit}, race)

	s.handleConnect()
	s.handleConnect()

	if got, want := ft.countEmits("join_cluster_ex"), 1; got != want {
		t.Errorf("join_cluster_ex emitted %d times, want %d", got, want)
	}
	if got, want := len(race.ConnectChanges), 1; got != want {
		t.Errorf("connect-change notifications = %d, want %d", got, want)
	}
	if !race.ConnectChanges[0].Connected {
		t.Errorf("expected connected=true notification")
	}
	if !s.IsConnected() {
		t.Errorf("expected session to be connected")
	}
}

func TestOnDisconnect_DuplicateIsIgnored(t *testing.T) {
	race := raceio.NewMemoryRace()
	s, _ := newTestSession(SecondaryConfig{Index: 0, Address: "http://secondary-0", Mode: RoleSplit}, race)

	// disconnect while never connected: ignored
	s.onDisconnect()
	if s.numDisconnects != 0 {
		t.Fatalf("numDisconnects = %d, want 0 before any connect", s.numDisconnects)
	}

	s.handleConnect()
	s.onDisconnect()
	s.onDisconnect()

	if got, want := s.numDisconnects, 1; got != want {
		t.Errorf("numDisconnects = %d, want %d", got, want)
	}
	if got, want := len(race.ConnectChanges), 2; got != want {
		t.Fatalf("connect-change notifications = %d, want %d", got, want)
	}
	if race.ConnectChanges[1].Connected {
		t.Errorf("expected second notification to be connected=false")
	}
}

func TestHandleConnect_MirrorNeverStagesRace(t *testing.T) {
	race := raceio.NewMemoryRace()
	race.SetStatus(raceio.StatusRacing)
	s, ft := newTestSession(SecondaryConfig{Index: 1, Address: "http://secondary-1", Mode: RoleMirror}, race)

	s.handleConnect()

	if _, ok := ft.lastEmit("stage_race"); ok {
		t.Errorf("mirror secondary should never receive stage_race")
	}
}

func TestHandleConnect_SplitStagesInProgressRace(t *testing.T) {
	race := raceio.NewMemoryRace()
	race.SetStatus(raceio.StatusRacing)
	s, ft := newTestSession(SecondaryConfig{Index: 0, Address: "http://secondary-0", Mode: RoleSplit}, race)

	s.handleConnect()

	if _, ok := ft.lastEmit("stage_race"); !ok {
		t.Errorf("expected stage_race to be emitted for split secondary joining an in-progress race")
	}
}
