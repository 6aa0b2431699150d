package drc

import "sync/atomic"

// Sequencer numbers the messages of one vehicle downlink. The zero value starts at 0.
type Sequencer struct {
	n uint64
}

// Next returns the current value and advances the counter.
func (s *Sequencer) Next() uint64 {
	return atomic.AddUint64(&s.n, 1) - 1
}

// Current returns the value the next call to Next will return.
func (s *Sequencer) Current() uint64 {
	return atomic.LoadUint64(&s.n)
}
