package playback

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rosalabs/voice-agent/internal/audio"
)

// Clock provides the playback timeline's current time in seconds.
// The epoch is zero at session start; the interruption reset below
// relies on that.
type Clock interface {
	Now() float64
}

// Handle represents one in-flight scheduled chunk
type Handle interface {
	Stop()
}

// Sink plays a decoded PCM chunk starting at the given timeline offset.
// onEnded is invoked once on natural completion; it must not be called
// synchronously from within Start.
type Sink interface {
	Start(pcm []byte, at float64, onEnded func()) (Handle, error)
}

// Scheduler plays decoded audio chunks back-to-back with no gap and no
// overlap, in arrival order. It owns a monotonically advancing cursor and
// the set of in-flight playback handles.
type Scheduler struct {
	clock      Clock
	sink       Sink
	sampleRate int
	logger     zerolog.Logger

	mu        sync.Mutex
	nextStart float64
	active    map[Handle]bool
	gen       uint64 // bumped by StopAll so racing Starts cannot outlive it
}

// NewScheduler creates a playback scheduler for 16-bit mono PCM at the
// given sample rate.
func NewScheduler(clock Clock, sink Sink, sampleRate int, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		clock:      clock,
		sink:       sink,
		sampleRate: sampleRate,
		logger:     logger,
		active:     make(map[Handle]bool),
	}
}

// Schedule queues one chunk of 16-bit little-endian mono PCM for gapless
// playback. A malformed chunk is logged and dropped; it does not abort the
// scheduler or the session. Returns whether the chunk was scheduled.
func (s *Scheduler) Schedule(pcm []byte) bool {
	if err := validateChunk(pcm); err != nil {
		s.logger.Error().Err(err).Msg("Dropping undecodable audio chunk")
		return false
	}

	duration := audio.PCM16Duration(pcm, s.sampleRate)

	s.mu.Lock()
	// Never schedule in the past: a stale cursor snaps forward to now,
	// a future cursor keeps playback gapless.
	if now := s.clock.Now(); now > s.nextStart {
		s.nextStart = now
	}
	at := s.nextStart
	s.nextStart = at + duration
	gen := s.gen
	s.mu.Unlock()

	// The sink may do slow work (e.g. a network write); never call it
	// while holding the lock
	var handle Handle
	handle, err := s.sink.Start(pcm, at, func() {
		s.mu.Lock()
		delete(s.active, handle)
		s.mu.Unlock()
	})

	s.mu.Lock()
	if err != nil {
		// Roll the cursor back so the failed chunk leaves no gap, unless
		// something else already moved it
		if s.gen == gen && s.nextStart == at+duration {
			s.nextStart = at
		}
		s.mu.Unlock()
		s.logger.Error().Err(err).Float64("at", at).Msg("Failed to start playback chunk")
		return false
	}
	if s.gen != gen {
		// StopAll raced the start; this chunk must not survive it
		s.mu.Unlock()
		handle.Stop()
		return false
	}
	s.active[handle] = true
	s.mu.Unlock()
	return true
}

// StopAll stops every in-flight chunk, clears the active set and resets the
// scheduling cursor so the next chunk schedules relative to now rather than
// a stale future offset. Called on barge-in and on teardown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	handles := make([]Handle, 0, len(s.active))
	for handle := range s.active {
		handles = append(handles, handle)
	}
	s.active = make(map[Handle]bool)
	s.nextStart = 0
	s.gen++
	s.mu.Unlock()

	// Stopping may write to the sink's transport; done outside the lock
	for _, handle := range handles {
		handle.Stop()
	}
}

// ActiveCount returns the number of chunks currently in flight
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func validateChunk(pcm []byte) error {
	if len(pcm) == 0 {
		return fmt.Errorf("empty PCM chunk")
	}
	if len(pcm)%2 != 0 {
		return fmt.Errorf("PCM chunk length must be even (16-bit samples), got %d", len(pcm))
	}
	return nil
}
