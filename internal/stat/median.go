package stat

import "sort"

// RunningMedian is a fixed-capacity sliding window over the last window
// signed integer samples, used to track the median clock-skew estimate
// between a secondary timer and the primary's clock.
type RunningMedian struct {
	window int
	order  []int // insertion order, oldest first
}

// NewRunningMedian creates an empty RunningMedian using the default window
// size.
func NewRunningMedian() *RunningMedian {
	return NewRunningMedianWithWindow(defaultWindowSize)
}

// NewRunningMedianWithWindow creates an empty RunningMedian with the given
// window size. A non-positive window falls back to the default.
func NewRunningMedianWithWindow(window int) *RunningMedian {
	if window <= 0 {
		window = defaultWindowSize
	}
	return &RunningMedian{window: window, order: make([]int, 0, window)}
}

// Insert adds a new sample, evicting the oldest once the window is full.
func (m *RunningMedian) Insert(v int) {
	if len(m.order) >= m.window {
		m.order = m.order[1:]
	}
	m.order = append(m.order, v)
}

// Len returns the number of samples currently held.
func (m *RunningMedian) Len() int {
	return len(m.order)
}

// Reset clears all stored samples. Used when a secondary's reported process
// start time changes, which invalidates any skew estimate gathered against
// its previous lifetime.
func (m *RunningMedian) Reset() {
	m.order = m.order[:0]
}

// Median returns the median of the current window, or 0 if empty. For an
// even sample count the average of the two middle values is returned,
// rounded to the nearest integer.
func (m *RunningMedian) Median() int {
	n := len(m.order)
	if n == 0 {
		return 0
	}
	sorted := make([]int, n)
	copy(sorted, m.order)
	sort.Ints(sorted)

	if n%2 == 1 {
		return sorted[n/2]
	}
	lo, hi := sorted[n/2-1], sorted[n/2]
	sum := lo + hi
	if sum >= 0 {
		return (sum + 1) / 2
	}
	return -((-sum + 1) / 2)
}
