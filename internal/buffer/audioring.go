package buffer

import "sync"

// AudioRing is a PCM ring buffer in house format (interleaved s16,
// typically 48 kHz stereo). It is fed by the video fill thread as a side
// effect of decode and popped by the tick thread in fixed sample counts
// per tick. At a block fence the ring is never flushed: audio PTS must
// stay continuous across block cuts.
type AudioRing struct {
	mu         sync.Mutex
	notFull    *sync.Cond
	samples    []int16
	capacity   int // in interleaved int16 values
	sampleRate int
	channels   int
	closed     bool
}

// NewAudioRing creates a ring sized for the given capacity in interleaved
// int16 values, at the given sample rate and channel count (house
// format). Capacity should be sized to several frame periods per
// spec.md §4.2.
func NewAudioRing(capacity, sampleRateHz, channels int) *AudioRing {
	if capacity < 1 {
		capacity = 1
	}
	if channels < 1 {
		channels = 1
	}
	r := &AudioRing{
		capacity:   capacity,
		samples:    make([]int16, 0, capacity),
		sampleRate: sampleRateHz,
		channels:   channels,
	}
	r.notFull = sync.NewCond(&r.mu)
	return r
}

// PushSamples blocks while there isn't room for all of samples. Slot-based:
// no hysteresis, proceeds the instant room exists. Returns false if the
// ring was closed while waiting.
func (r *AudioRing) PushSamples(samples []int16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.samples)+len(samples) > r.capacity && !r.closed {
		r.notFull.Wait()
	}
	if r.closed {
		return false
	}
	r.samples = append(r.samples, samples...)
	return true
}

// TryPopSamples returns false if fewer than n interleaved values are
// available, leaving the ring untouched. On success it copies exactly n
// values into out (which must have length >= n) and advances the ring.
func (r *AudioRing) TryPopSamples(n int, out []int16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) < n {
		return false
	}
	copy(out[:n], r.samples[:n])
	r.samples = r.samples[n:]
	r.notFull.Signal()
	return true
}

// DepthMs returns the currently buffered audio duration in milliseconds.
func (r *AudioRing) DepthMs() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := len(r.samples) / r.channels
	if r.sampleRate == 0 {
		return 0
	}
	return int64(frames) * 1000 / int64(r.sampleRate)
}

// DepthSamples returns the currently buffered interleaved sample count.
func (r *AudioRing) DepthSamples() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Close releases any fill thread blocked in PushSamples.
func (r *AudioRing) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.notFull.Broadcast()
}
