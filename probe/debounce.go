package probe

// Debouncer decides when a raw active signal is firmly active.
//
// A reading is confirmed after Threshold+1 consecutive active samples.
// Any inactive sample resets the count.
type Debouncer struct {
	Threshold int
}

// Next consumes one sample. It returns the new count and whether the
// signal is confirmed on this sample. The count is reset on confirmation.
func (d Debouncer) Next(count int, active bool) (int, bool) {
	if !active {
		return 0, false
	}
	if count < d.Threshold {
		return count + 1, false
	}
	return 0, true
}
