// Package progress tracks completion percentages for long-running phases.
package progress

// Tracker counts completed items out of a fixed total and tells the caller
// when the percentage has advanced by at least one step since the last report.
type Tracker struct {
	total int
	done  int
	step  float64
	last  float64
}

// NewTracker creates a tracker reporting every step percent.
func NewTracker(total int, step float64) *Tracker {
	return &Tracker{total: total, step: step}
}

// Add marks n more items done. It returns the current percentage and whether
// it should be reported. Completion is always reported.
func (t *Tracker) Add(n int) (float64, bool) {
	t.done += n
	pct := t.Percent()
	if pct >= t.last+t.step || (t.done >= t.total && t.last < 100) {
		t.last = pct
		return pct, true
	}
	return pct, false
}

// Percent returns the completed share in percent. An empty total is complete.
func (t *Tracker) Percent() float64 {
	if t.total <= 0 {
		return 100
	}
	return float64(t.done) * 100 / float64(t.total)
}

// Done returns the number of completed items.
func (t *Tracker) Done() int {
	return t.done
}
