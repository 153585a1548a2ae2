package stat

import "testing"

func TestAverager(t *testing.T) {
	tests := []struct {
		name    string
		samples []int
		wantMin int
		wantMax int
		wantAvg int
		wantLast int
	}{
		{
			name:    "empty",
			samples: nil,
			wantMin: 0, wantMax: 0, wantAvg: 0, wantLast: 0,
		},
		{
			name:    "single sample",
			samples: []int{42},
			wantMin: 42, wantMax: 42, wantAvg: 42, wantLast: 42,
		},
		{
			name:    "several samples",
			samples: []int{10, 20, 30},
			wantMin: 10, wantMax: 30, wantAvg: 20, wantLast: 30,
		},
		{
			name:    "rounds to nearest",
			samples: []int{1, 2},
			wantMin: 1, wantMax: 2, wantAvg: 2, wantLast: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAverager()
			for _, s := range tt.samples {
				a.Add(s)
			}
			if got := a.Min(); got != tt.wantMin {
				t.Errorf("Min() = %d, want %d", got, tt.wantMin)
			}
			if got := a.Max(); got != tt.wantMax {
				t.Errorf("Max() = %d, want %d", got, tt.wantMax)
			}
			if got := a.IntAvg(); got != tt.wantAvg {
				t.Errorf("IntAvg() = %d, want %d", got, tt.wantAvg)
			}
			if got := a.Last(); got != tt.wantLast {
				t.Errorf("Last() = %d, want %d", got, tt.wantLast)
			}
		})
	}
}

func TestAveragerWindowEviction(t *testing.T) {
	a := NewAverager()
	for i := 1; i <= defaultWindowSize+5; i++ {
		a.Add(i)
	}
	if got, want := a.Len(), defaultWindowSize; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	// the oldest 5 samples (1..5) should have been evicted; min is now 6
	if got, want := a.Min(), 6; got != want {
		t.Errorf("Min() after eviction = %d, want %d", got, want)
	}
	if got, want := a.Last(), defaultWindowSize+5; got != want {
		t.Errorf("Last() after eviction = %d, want %d", got, want)
	}
}

func TestAveragerWithWindow_CustomSize(t *testing.T) {
	a := NewAveragerWithWindow(3)
	for _, v := range []int{1, 2, 3, 4} {
		a.Add(v)
	}
	if got, want := a.Len(), 3; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if got, want := a.Min(), 2; got != want {
		t.Errorf("Min() = %d, want %d (sample 1 should have been evicted)", got, want)
	}
}

func TestAveragerWithWindow_NonPositiveFallsBackToDefault(t *testing.T) {
	a := NewAveragerWithWindow(0)
	for i := 1; i <= defaultWindowSize+1; i++ {
		a.Add(i)
	}
	if got, want := a.Len(), defaultWindowSize; got != want {
		t.Errorf("Len() = %d, want default window size %d", got, want)
	}
}
