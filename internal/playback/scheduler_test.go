package playback

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type fakeClock struct {
	now float64
}

func (c *fakeClock) Now() float64 { return c.now }

type fakeHandle struct {
	stopped bool
	onEnded func()
}

func (h *fakeHandle) Stop() { h.stopped = true }

type fakeSink struct {
	starts  []float64
	handles []*fakeHandle
	chunks  [][]byte
}

func (s *fakeSink) Start(pcm []byte, at float64, onEnded func()) (Handle, error) {
	h := &fakeHandle{onEnded: onEnded}
	s.starts = append(s.starts, at)
	s.handles = append(s.handles, h)
	s.chunks = append(s.chunks, pcm)
	return h, nil
}

// chunk returns a PCM buffer of the given duration in seconds at 24kHz
func chunk(seconds float64) []byte {
	return make([]byte, int(seconds*24000)*2)
}

func newTestScheduler(clock *fakeClock, sink *fakeSink) *Scheduler {
	return NewScheduler(clock, sink, 24000, zerolog.Nop())
}

func TestScheduler_GaplessPlayback(t *testing.T) {
	clock := &fakeClock{now: 1.0}
	sink := &fakeSink{}
	s := newTestScheduler(clock, sink)

	// Three half-second chunks arriving faster than real time
	s.Schedule(chunk(0.5))
	s.Schedule(chunk(0.5))
	s.Schedule(chunk(0.5))

	if len(sink.starts) != 3 {
		t.Fatalf("Expected 3 scheduled chunks, got %d", len(sink.starts))
	}

	expected := []float64{1.0, 1.5, 2.0}
	for i, at := range sink.starts {
		if at != expected[i] {
			t.Errorf("Chunk %d: expected start %f, got %f", i, expected[i], at)
		}
	}

	// Start times are non-decreasing and each chunk's end equals the
	// next chunk's start
	for i := 1; i < len(sink.starts); i++ {
		if sink.starts[i] < sink.starts[i-1] {
			t.Errorf("Start times not non-decreasing at chunk %d", i)
		}
		end := sink.starts[i-1] + 0.5
		if sink.starts[i] != end {
			t.Errorf("Gap between chunk %d end (%f) and chunk %d start (%f)", i-1, end, i, sink.starts[i])
		}
	}
}

func TestScheduler_StaleCursorSnapsToNow(t *testing.T) {
	clock := &fakeClock{now: 0.0}
	sink := &fakeSink{}
	s := newTestScheduler(clock, sink)

	s.Schedule(chunk(0.1))

	// Real time has moved well past the cursor
	clock.now = 5.0
	s.Schedule(chunk(0.1))

	if sink.starts[1] != 5.0 {
		t.Errorf("Expected chunk scheduled at now (5.0), got %f", sink.starts[1])
	}
}

func TestScheduler_Interruption(t *testing.T) {
	clock := &fakeClock{now: 0.0}
	sink := &fakeSink{}
	s := newTestScheduler(clock, sink)

	s.Schedule(chunk(1.0))
	s.Schedule(chunk(1.0))

	if s.ActiveCount() != 2 {
		t.Fatalf("Expected 2 active chunks, got %d", s.ActiveCount())
	}

	s.StopAll()

	if s.ActiveCount() != 0 {
		t.Errorf("Expected empty active set after StopAll, got %d", s.ActiveCount())
	}
	for i, h := range sink.handles {
		if !h.stopped {
			t.Errorf("Expected handle %d stopped", i)
		}
	}

	// Next chunk schedules at-or-after real time, not at the stale
	// future cursor
	clock.now = 0.25
	s.Schedule(chunk(0.5))

	if got := sink.starts[len(sink.starts)-1]; got != 0.25 {
		t.Errorf("Expected post-interrupt chunk at 0.25, got %f", got)
	}
}

func TestScheduler_NaturalCompletionReleasesHandle(t *testing.T) {
	clock := &fakeClock{now: 0.0}
	sink := &fakeSink{}
	s := newTestScheduler(clock, sink)

	s.Schedule(chunk(0.5))

	if s.ActiveCount() != 1 {
		t.Fatalf("Expected 1 active chunk, got %d", s.ActiveCount())
	}

	// Playback-ended notification releases the chunk
	sink.handles[0].onEnded()

	if s.ActiveCount() != 0 {
		t.Errorf("Expected 0 active chunks after ended, got %d", s.ActiveCount())
	}
}

// reentrantHandle calls back into the scheduler when stopped, like a sink
// whose transport reports state
type reentrantHandle struct {
	s *Scheduler
}

func (h *reentrantHandle) Stop() { h.s.ActiveCount() }

// reentrantSink calls back into the scheduler from Start and Stop; both
// must be safe because the scheduler never holds its lock across sink calls
type reentrantSink struct {
	s *Scheduler
}

func (s *reentrantSink) Start(pcm []byte, at float64, onEnded func()) (Handle, error) {
	s.s.ActiveCount()
	return &reentrantHandle{s: s.s}, nil
}

func TestScheduler_SinkMayReenterScheduler(t *testing.T) {
	clock := &fakeClock{now: 0.0}
	sink := &reentrantSink{}
	s := NewScheduler(clock, sink, 24000, zerolog.Nop())
	sink.s = s

	if !s.Schedule(chunk(0.5)) {
		t.Fatal("Expected chunk scheduled through reentrant sink")
	}
	s.StopAll()

	if s.ActiveCount() != 0 {
		t.Errorf("Expected empty active set, got %d", s.ActiveCount())
	}
}

type failingSink struct {
	err error
}

func (s *failingSink) Start(pcm []byte, at float64, onEnded func()) (Handle, error) {
	return nil, s.err
}

func TestScheduler_StartFailureRollsCursorBack(t *testing.T) {
	clock := &fakeClock{now: 1.0}
	failing := &failingSink{err: errors.New("sink unavailable")}
	s := NewScheduler(clock, failing, 24000, zerolog.Nop())

	if s.Schedule(chunk(0.5)) {
		t.Fatal("Expected scheduling to fail when the sink errors")
	}

	// The failed chunk must not leave a half-second hole in the timeline
	working := &fakeSink{}
	s.sink = working
	s.Schedule(chunk(0.5))

	if len(working.starts) != 1 || working.starts[0] != 1.0 {
		t.Errorf("Expected next chunk at 1.0, got %+v", working.starts)
	}
}

func TestScheduler_DropsMalformedChunk(t *testing.T) {
	clock := &fakeClock{now: 0.0}
	sink := &fakeSink{}
	s := newTestScheduler(clock, sink)

	if s.Schedule(nil) {
		t.Error("Expected empty chunk rejected")
	}
	if s.Schedule([]byte{0x01}) {
		t.Error("Expected odd-length chunk rejected")
	}
	if !s.Schedule(chunk(0.5)) {
		t.Error("Expected valid chunk scheduled")
	}

	if len(sink.starts) != 1 {
		t.Fatalf("Expected only the valid chunk scheduled, got %d", len(sink.starts))
	}

	// The malformed chunks must not have advanced the cursor
	if sink.starts[0] != 0.0 {
		t.Errorf("Expected valid chunk at 0.0, got %f", sink.starts[0])
	}
}
