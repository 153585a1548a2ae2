package cluster

import "testing"

func TestApplyDefaults(t *testing.T) {
	cfg := SecondaryConfig{Index: 2, Address: "http://secondary-2"}
	cfg.ApplyDefaults()

	if cfg.Mode != RoleSplit {
		t.Errorf("Mode = %q, want %q", cfg.Mode, RoleSplit)
	}
	if cfg.QueryInterval != 10 {
		t.Errorf("QueryInterval = %d, want 10", cfg.QueryInterval)
	}
	if cfg.QueryTimeout != 300 {
		t.Errorf("QueryTimeout = %d, want 300", cfg.QueryTimeout)
	}
	if cfg.MinRepeatSecs != 10 {
		t.Errorf("MinRepeatSecs = %d, want 10", cfg.MinRepeatSecs)
	}
	if want := "SecondaryActionTimer_3"; cfg.Event != want {
		t.Errorf("Event = %q, want %q", cfg.Event, want)
	}
	if cfg.Tone.VolumePct != 100 {
		t.Errorf("Tone.VolumePct = %d, want 100", cfg.Tone.VolumePct)
	}
	if cfg.Tone.Type != "square" {
		t.Errorf("Tone.Type = %q, want %q", cfg.Tone.Type, "square")
	}
}

func TestApplyDefaults_DoesNotOverrideSetFields(t *testing.T) {
	cfg := SecondaryConfig{
		Index: 0, Address: "http://secondary-0", Mode: RoleMirror,
		QueryInterval: 5, QueryTimeout: 60, MinRepeatSecs: 3, Event: "Custom",
		Tone: ToneConfig{VolumePct: 40, Type: "sine"},
	}
	cfg.ApplyDefaults()

	if cfg.Mode != RoleMirror {
		t.Errorf("Mode was overridden: got %q", cfg.Mode)
	}
	if cfg.QueryInterval != 5 || cfg.QueryTimeout != 60 || cfg.MinRepeatSecs != 3 {
		t.Errorf("explicit timing fields were overridden: %+v", cfg)
	}
	if cfg.Event != "Custom" {
		t.Errorf("Event was overridden: got %q", cfg.Event)
	}
	if cfg.Tone.VolumePct != 40 || cfg.Tone.Type != "sine" {
		t.Errorf("explicit tone fields were overridden: %+v", cfg.Tone)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SecondaryConfig
		wantErr bool
	}{
		{
			name:    "valid split",
			cfg:     SecondaryConfig{Index: 0, Address: "http://secondary-0", Mode: RoleSplit, QueryInterval: 10},
			wantErr: false,
		},
		{
			name:    "missing address",
			cfg:     SecondaryConfig{Index: 0, Mode: RoleSplit, QueryInterval: 10},
			wantErr: true,
		},
		{
			name:    "invalid mode",
			cfg:     SecondaryConfig{Index: 0, Address: "http://secondary-0", Mode: "bogus", QueryInterval: 10},
			wantErr: true,
		},
		{
			name:    "zero query interval",
			cfg:     SecondaryConfig{Index: 0, Address: "http://secondary-0", Mode: RoleSplit, QueryInterval: 0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFirstQueryIntervalSecs(t *testing.T) {
	tests := []struct {
		queryInterval int
		want          int
	}{
		{queryInterval: 1, want: 1},
		{queryInterval: 2, want: 2},
		{queryInterval: 3, want: 3},
		{queryInterval: 10, want: 3},
	}
	for _, tt := range tests {
		cfg := SecondaryConfig{QueryInterval: tt.queryInterval}
		if got := cfg.FirstQueryIntervalSecs(); got != tt.want {
			t.Errorf("FirstQueryIntervalSecs() with QueryInterval=%d = %d, want %d", tt.queryInterval, got, tt.want)
		}
	}
}

func TestRecordsEvents_DefaultsByMode(t *testing.T) {
	split := SecondaryConfig{Mode: RoleSplit}
	if split.RecordsEvents() {
		t.Error("split secondary should not record events by default")
	}

	mirror := SecondaryConfig{Mode: RoleMirror}
	if !mirror.RecordsEvents() {
		t.Error("mirror secondary should record events by default")
	}

	explicit := true
	overridden := SecondaryConfig{Mode: RoleSplit, RecordEvents: &explicit}
	if !overridden.RecordsEvents() {
		t.Error("explicit RecordEvents=true should override the mode default")
	}
}

func TestDistanceMm(t *testing.T) {
	cfg := SecondaryConfig{DistanceM: 10}
	if got, want := cfg.DistanceMm(), 10000.0; got != want {
		t.Errorf("DistanceMm() = %v, want %v", got, want)
	}
}
