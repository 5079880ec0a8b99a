package jpegc

// memoryBudget tracks the cumulative size of the large buffers reserved by a
// single decode call against a hard ceiling. Every multi-block allocation asks
// the budget first, so a hostile header cannot make the decoder commit more
// than one buffer past the limit.
//
// The budget belongs to the decoder value of one call and is reset at the
// start of every top-level decode; it is never shared across calls.
type memoryBudget struct {
	allocated int
	limit     int
}

// reset clears the counter and installs a new ceiling in bytes.
func (m *memoryBudget) reset(limit int) {
	m.allocated = 0
	m.limit = limit
}

// request reserves n more bytes, failing with a MemoryLimitError when the
// cumulative total would pass the ceiling.
func (m *memoryBudget) request(n int) error {
	total := m.allocated + n
	if total > m.limit {
		return &MemoryLimitError{ExcessMB: (total - m.limit + (1 << 20) - 1) >> 20}
	}

	m.allocated = total

	return nil
}
