// Package pressure implements the memory-pressure sensor: a hysteresis
// sampler over process memory usage that flips into a sticky "under
// pressure" state at a high-water mark and only clears at a lower
// low-water mark, broadcasting a one-shot signal on each onset.
package pressure

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// Sampler reports current process memory usage in bytes. The default
// implementation (NewProcessSampler) wraps gopsutil; tests substitute a
// deterministic fake.
type Sampler func() (uint64, error)

// NewProcessSampler returns a Sampler backed by gopsutil's process RSS.
func NewProcessSampler() Sampler {
	return func() (uint64, error) {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return 0, fmt.Errorf("locating current process: %w", err)
		}
		info, err := proc.MemoryInfo()
		if err != nil {
			return 0, fmt.Errorf("reading memory info: %w", err)
		}
		return info.RSS, nil
	}
}

// Sensor is a hysteresis memory-pressure sampler: it trips into the
// "under pressure" state once usage crosses highMark, and only clears
// once usage falls strictly below lowMark (lowMarkRatio * highMark).
type Sensor struct {
	highMark uint64
	lowMark  uint64
	sample   Sampler

	mu            sync.Mutex
	underPressure bool

	onset chan struct{}
}

// NewSensor builds a Sensor. highMarkMB is the high-water mark in
// megabytes; lowMarkRatio (0, 1] sets the low-water mark as a fraction
// of the high mark.
func NewSensor(highMarkMB int, lowMarkRatio float64, sample Sampler) *Sensor {
	high := uint64(highMarkMB) * 1024 * 1024
	low := uint64(float64(high) * lowMarkRatio)
	return &Sensor{
		highMark: high,
		lowMark:  low,
		sample:   sample,
		onset:    make(chan struct{}, 1),
	}
}

// Onset returns a channel that receives a one-shot signal every time the
// sensor transitions from normal to under-pressure. The channel is
// buffered (size 1); a signal already pending is not duplicated.
func (s *Sensor) Onset() <-chan struct{} {
	return s.onset
}

// IsUnderPressure reports the sensor's current sticky state.
func (s *Sensor) IsUnderPressure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.underPressure
}

// Sample reads current memory usage and updates the hysteresis state,
// firing Onset() exactly once per normal→pressure transition.
func (s *Sensor) Sample(_ context.Context) (uint64, error) {
	usage, err := s.sample()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.nextState(usage)
	if next && !s.underPressure {
		select {
		case s.onset <- struct{}{}:
		default:
		}
	}
	s.underPressure = next

	return usage, nil
}

// nextState applies the hysteresis rule given the sticky current state.
// At exactly the low-water mark the sensor stays under pressure; it only
// clears once usage drops strictly below the low mark.
func (s *Sensor) nextState(usage uint64) bool {
	if s.underPressure {
		return usage >= s.lowMark
	}
	return usage >= s.highMark
}
