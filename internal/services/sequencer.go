package services

import (
	"sync"
	"time"
)

// CallContext identifies one state-changing call: who is calling and where
// the call sits in the logical ordering. Block numbers bucket rate limits
// and may be coarse; Timestamp is in logical time units and only ever grows.
type CallContext struct {
	Caller    string
	Block     int64
	Timestamp int64
}

// Sequencer derives the logical block number and timestamp for incoming
// calls from a genesis instant and a fixed block interval. One logical time
// unit is one second since genesis.
type Sequencer struct {
	genesis  time.Time
	interval time.Duration
}

func NewSequencer(blockInterval time.Duration) *Sequencer {
	return &Sequencer{
		genesis:  time.Now(),
		interval: blockInterval,
	}
}

// Call stamps a caller address with the current logical position.
func (s *Sequencer) Call(caller string) CallContext {
	elapsed := time.Since(s.genesis)
	return CallContext{
		Caller:    caller,
		Block:     int64(elapsed / s.interval),
		Timestamp: int64(elapsed / time.Second),
	}
}

// Serializer reproduces the one-call-at-a-time execution model: every
// state-changing operation of the engine runs with the serializer held, so
// no two calls ever interleave mid-update. It also carries the global pause
// flag the operator role controls.
type Serializer struct {
	mu     sync.Mutex
	paused bool
}

func NewSerializer() *Serializer {
	return &Serializer{}
}

func (s *Serializer) Lock()   { s.mu.Lock() }
func (s *Serializer) Unlock() { s.mu.Unlock() }

// Pause blocks subsequent state-changing calls until Unpause.
func (s *Serializer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

func (s *Serializer) Unpause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// pausedLocked must be called with the serializer held.
func (s *Serializer) pausedLocked() bool {
	return s.paused
}

// IsPaused reports the pause flag for read surfaces.
func (s *Serializer) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}
