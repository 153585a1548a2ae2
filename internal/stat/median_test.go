package stat

import "testing"

func TestRunningMedian(t *testing.T) {
	tests := []struct {
		name    string
		samples []int
		want    int
	}{
		{name: "empty", samples: nil, want: 0},
		{name: "single", samples: []int{7}, want: 7},
		{name: "odd count", samples: []int{5, 1, 3}, want: 3},
		{name: "even count averages middles", samples: []int{1, 2, 3, 4}, want: 3},
		{name: "negative skew values", samples: []int{-400, -200, 100}, want: -200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewRunningMedian()
			for _, s := range tt.samples {
				m.Insert(s)
			}
			if got := m.Median(); got != tt.want {
				t.Errorf("Median() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunningMedianWindowEviction(t *testing.T) {
	m := NewRunningMedian()
	for i := 0; i < defaultWindowSize; i++ {
		m.Insert(0)
	}
	if got := m.Median(); got != 0 {
		t.Fatalf("Median() = %d, want 0", got)
	}
	// push defaultWindowSize more samples of 1000; the zeros should be fully evicted
	for i := 0; i < defaultWindowSize; i++ {
		m.Insert(1000)
	}
	if got, want := m.Len(), defaultWindowSize; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if got, want := m.Median(), 1000; got != want {
		t.Errorf("Median() after eviction = %d, want %d", got, want)
	}
}

func TestRunningMedianWithWindow_CustomSize(t *testing.T) {
	m := NewRunningMedianWithWindow(3)
	for _, v := range []int{1, 2, 3, 100} {
		m.Insert(v)
	}
	if got, want := m.Len(), 3; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if got, want := m.Median(), 3; got != want {
		t.Errorf("Median() = %d, want %d (sample 1 should have been evicted)", got, want)
	}
}

func TestRunningMedianReset(t *testing.T) {
	m := NewRunningMedian()
	m.Insert(100)
	m.Insert(200)
	m.Reset()
	if got := m.Len(); got != 0 {
		t.Fatalf("Len() after Reset() = %d, want 0", got)
	}
	if got := m.Median(); got != 0 {
		t.Errorf("Median() after Reset() = %d, want 0", got)
	}
}
