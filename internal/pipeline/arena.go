package pipeline

import (
	"sync"

	"github.com/slbailey/airengine/internal/buffer"
	"github.com/slbailey/airengine/internal/producer"
)

// ProducerHandle and BufferHandle are opaque indices into the Arena.
// Holding a handle, rather than a pointer, is what lets a B->A swap
// happen by rebinding a handle's target instead of every goroutine that
// touched the old pointer needing to learn about the move.
type ProducerHandle int
type BufferHandle int

const invalidHandle = -1

// Arena owns every TickProducer, VideoBuffer, and AudioRing in a
// session by index. No component retains a strong back-pointer to the
// Pipeline Manager; a fill thread is handed only a ProducerHandle and a
// pair of BufferHandles and re-resolves them through the Arena on every
// iteration, so a swap that moves a slot's contents elsewhere is
// observed by the fill thread as "my producer is gone" rather than as a
// dangling pointer.
type Arena struct {
	mu sync.RWMutex

	producers map[ProducerHandle]*producer.TickProducer
	videoBufs map[BufferHandle]*buffer.VideoBuffer
	audioBufs map[BufferHandle]*buffer.AudioRing

	nextProducer ProducerHandle
	nextBuffer   BufferHandle
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		producers: make(map[ProducerHandle]*producer.TickProducer),
		videoBufs: make(map[BufferHandle]*buffer.VideoBuffer),
		audioBufs: make(map[BufferHandle]*buffer.AudioRing),
	}
}

// AddProducer registers p and returns its handle.
func (a *Arena) AddProducer(p *producer.TickProducer) ProducerHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.nextProducer
	a.nextProducer++
	a.producers[h] = p
	return h
}

// GetProducer resolves h to its current producer, or nil if the handle
// has been removed (moved out by a swap, or reaped).
func (a *Arena) GetProducer(h ProducerHandle) *producer.TickProducer {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.producers[h]
}

// RemoveProducer detaches h from the arena and returns what it pointed
// to, for the caller to hand to the reaper.
func (a *Arena) RemoveProducer(h ProducerHandle) *producer.TickProducer {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.producers[h]
	delete(a.producers, h)
	return p
}

// AddVideoBuffer registers b and returns its handle.
func (a *Arena) AddVideoBuffer(b *buffer.VideoBuffer) BufferHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.nextBuffer
	a.nextBuffer++
	a.videoBufs[h] = b
	return h
}

// GetVideoBuffer resolves h, or nil if removed.
func (a *Arena) GetVideoBuffer(h BufferHandle) *buffer.VideoBuffer {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.videoBufs[h]
}

// RemoveVideoBuffer detaches h and returns what it pointed to.
func (a *Arena) RemoveVideoBuffer(h BufferHandle) *buffer.VideoBuffer {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.videoBufs[h]
	delete(a.videoBufs, h)
	return b
}

// AddAudioBuffer registers b and returns its handle.
func (a *Arena) AddAudioBuffer(b *buffer.AudioRing) BufferHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.nextBuffer
	a.nextBuffer++
	a.audioBufs[h] = b
	return h
}

// GetAudioBuffer resolves h, or nil if removed.
func (a *Arena) GetAudioBuffer(h BufferHandle) *buffer.AudioRing {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.audioBufs[h]
}

// RemoveAudioBuffer detaches h and returns what it pointed to.
func (a *Arena) RemoveAudioBuffer(h BufferHandle) *buffer.AudioRing {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.audioBufs[h]
	delete(a.audioBufs, h)
	return b
}

// slot bundles one producer and its two buffer handles, the unit a
// swap moves as a whole between the A and B roles.
type slot struct {
	producer ProducerHandle
	video    BufferHandle
	audio    BufferHandle
	blockID  string
	segIndex int
}

func emptySlot() slot {
	return slot{producer: invalidHandle, video: invalidHandle, audio: invalidHandle, segIndex: -1}
}

// fillLoop drains producer h into its buffers until EOF, decoder error,
// or the buffers are closed out from under it (observed as a nil
// resolve). It never runs on the tick thread.
func fillLoop(arena *Arena, ph ProducerHandle, vh, ah BufferHandle, onErr func(error)) {
	for {
		p := arena.GetProducer(ph)
		if p == nil {
			return
		}
		frame, eof, err := p.NextFrame()
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		if eof {
			return
		}
		vb := arena.GetVideoBuffer(vh)
		if vb == nil {
			return
		}
		if !vb.PushFrame(frame) {
			return
		}
		if len(frame.AudioSamples) > 0 {
			if ab := arena.GetAudioBuffer(ah); ab != nil {
				ab.PushSamples(frame.AudioSamples)
			}
		}
	}
}
