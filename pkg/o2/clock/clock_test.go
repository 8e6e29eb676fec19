package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSync_NotSyncedBeforeEnoughSamples(t *testing.T) {
	base := time.Unix(1000, 0)
	now := base
	s := NewSyncWithClock(func() time.Time { return now })

	for i := 0; i < SampleCount-1; i++ {
		serial := s.BeginSample()
		now = now.Add(10 * time.Millisecond)
		ok := s.CompleteSample(serial, float64(now.Unix()))
		require.True(t, ok)
		assert.False(t, s.Synced())
	}
}

func TestSync_SyncedAfterSampleCount(t *testing.T) {
	base := time.Unix(2000, 0)
	now := base
	s := NewSyncWithClock(func() time.Time { return now })

	for i := 0; i < SampleCount; i++ {
		serial := s.BeginSample()
		now = now.Add(10 * time.Millisecond)
		refTime := float64(now.Unix())
		s.CompleteSample(serial, refTime)
	}
	assert.True(t, s.Synced())
}

func TestSync_CompleteSampleRejectsUnknownSerial(t *testing.T) {
	s := NewSync()
	assert.False(t, s.CompleteSample(999, 0))
}

func TestSync_GlobalRequiresSynced(t *testing.T) {
	s := NewSync()
	_, ok := s.Global(time.Now())
	assert.False(t, ok)
}

func TestSync_NextPollIntervalStartsLowAndDecaysOnceSynced(t *testing.T) {
	base := time.Unix(3000, 0)
	now := base
	s := NewSyncWithClock(func() time.Time { return now })
	assert.Equal(t, minPollInterval, s.NextPollInterval())

	for i := 0; i < SampleCount; i++ {
		serial := s.BeginSample()
		now = now.Add(10 * time.Millisecond)
		s.CompleteSample(serial, float64(now.Unix()))
	}

	first := s.NextPollInterval()
	second := s.NextPollInterval()
	assert.True(t, second > first)
	assert.True(t, second <= maxPollInterval)
}
