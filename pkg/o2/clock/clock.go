// Package clock implements a clock-synchronization algorithm: round-trip
// sampling against a reference clock, a minimum-RTT offset estimator,
// gradual slewing once synced, and the synced-status transition.
package clock

import (
	"sync"
	"time"
)

const (
	// SampleCount is the number of RTT samples kept, and the number
	// collected before transitioning to synced.
	SampleCount = 5

	minPollInterval = 100 * time.Millisecond
	maxPollInterval = 10 * time.Second
	slewStep = 2 * time.Millisecond
)

// Sample is one round-trip measurement against the reference.
type Sample struct {
	RTT time.Duration
	Offset time.Duration // ref - local, computed at reply time
}

// NowFunc lets tests substitute a controllable clock source.
type NowFunc func() time.Time

// Sync tracks one peer's clock-synchronization state: the rolling sample
// history, the current best offset estimate, and whether enough samples
// have accumulated to call the process "synced".
type Sync struct {
	mu sync.Mutex
	now NowFunc
	samples []Sample
	offset time.Duration
	synced bool
	pollInterval time.Duration
	pendingSend map[uint32]time.Time
	nextSerial uint32
}

// NewSync builds a Sync using the real wall clock.
func NewSync() *Sync {
	return NewSyncWithClock(time.Now)
}

// NewSyncWithClock builds a Sync using a caller-supplied time source,
// for deterministic tests.
func NewSyncWithClock(now NowFunc) *Sync {
	return &Sync{
		now: now,
		pollInterval: minPollInterval,
		pendingSend: make(map[uint32]time.Time),
	}
}

// BeginSample records the send time of a new /_o2/cs/get request and
// returns its serial number, to be echoed back by the reference's reply.
func (s *Sync) BeginSample() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSerial++
	serial := s.nextSerial
	s.pendingSend[serial] = s.now()
	return serial
}

// CompleteSample records the reference's reply (refTime, its reported
// current time) for the request identified by serial, updates the rolling
// sample history, and recomputes the best offset estimate.
// Returns false if serial does not match an outstanding request.
func (s *Sync) CompleteSample(serial uint32, refTime float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sendTime, ok := s.pendingSend[serial]
	if !ok {
		return false
	}
	delete(s.pendingSend, serial)

	now := s.now()
	rtt := now.Sub(sendTime)
	// ref - (now - rtt/2): the reference's clock value halfway through the
	// round trip, compared to our local "now" at reply time.
	localMidpoint := now.Add(-rtt / 2)
	offset := time.Duration(refTime*float64(time.Second)) - time.Duration(localMidpoint.UnixNano())

	s.samples = append(s.samples, Sample{RTT: rtt, Offset: offset})
	if len(s.samples) > SampleCount {
		s.samples = s.samples[len(s.samples)-SampleCount:]
	}

	best := s.bestSample()

	if !s.synced {
		if len(s.samples) >= SampleCount {
			s.offset = best.Offset
			s.synced = true
		}
		return true
	}

	s.applySteadyState(best)
	return true
}

// bestSample returns the sample with the minimum RTT, the most accurate
// offset estimate.
func (s *Sync) bestSample() Sample {
	best := s.samples[0]
	for _, sample := range s.samples[1:] {
		if sample.RTT < best.RTT {
			best = sample
		}
	}
	return best
}

// applySteadyState updates the current offset toward a new best estimate
// without a discontinuous jump: clip into [new-minRTT, new+minRTT] if the
// jump is large, otherwise slew by at most slewStep toward the estimate.
func (s *Sync) applySteadyState(best Sample) {
	lo := best.Offset - best.RTT
	hi := best.Offset + best.RTT
	if s.offset < lo || s.offset > hi {
		if s.offset < lo {
			s.offset = lo
		} else {
			s.offset = hi
		}
		return
	}
	diff := best.Offset - s.offset
	if diff > slewStep {
		s.offset += slewStep
	} else if diff < -slewStep {
		s.offset -= slewStep
	} else {
		s.offset = best.Offset
	}
}

// Synced reports whether this peer has collected enough samples to trust
// its offset estimate.
func (s *Sync) Synced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced
}

// Offset returns the current best local-to-reference offset.
func (s *Sync) Offset() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Global converts a local time into the estimated reference (global) time.
func (s *Sync) Global(local time.Time) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.synced {
		return time.Time{}, false
	}
	return local.Add(s.offset), true
}

// NextPollInterval returns the decaying poll interval for steady-state
// sampling: starts at 100ms, decays toward 10s as the clock stabilizes.
func (s *Sync) NextPollInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.synced {
		return minPollInterval
	}
	s.pollInterval *= 2
	if s.pollInterval > maxPollInterval {
		s.pollInterval = maxPollInterval
	}
	return s.pollInterval
}
