package queue

import "sync/atomic"

// Sequencer numbers accepted reservations in arrival order.
type Sequencer struct{ n atomic.Uint64 }

// Next returns the next sequence number, starting at 1.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }
