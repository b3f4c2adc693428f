package pipeline

import (
	"log/slog"

	"github.com/slbailey/airengine/internal/buffer"
	"github.com/slbailey/airengine/internal/producer"
)

// reapJob bundles the torn-down half of a swap: the previous A-slot
// producer and buffers, handed off so the tick thread never blocks on a
// decoder close.
type reapJob struct {
	producer  *producer.TickProducer
	videoBuf  *buffer.VideoBuffer
	audioBuf  *buffer.AudioRing
	blockID   string
	segIndex  int
}

// reaper drains reapJobs on its own goroutine, off the tick thread.
type reaper struct {
	jobs chan reapJob
	done chan struct{}
	log  *slog.Logger
}

func newReaper(log *slog.Logger, queueDepth int) *reaper {
	if queueDepth < 1 {
		queueDepth = 8
	}
	r := &reaper{jobs: make(chan reapJob, queueDepth), done: make(chan struct{}), log: log}
	go r.run()
	return r
}

func (r *reaper) run() {
	for job := range r.jobs {
		if job.videoBuf != nil {
			job.videoBuf.Close()
		}
		if job.audioBuf != nil {
			job.audioBuf.Close()
		}
		if job.producer != nil {
			if err := job.producer.Close(); err != nil {
				r.log.Warn("reaper: producer close failed", "block_id", job.blockID, "segment_index", job.segIndex, "error", err)
			}
		}
	}
	close(r.done)
}

// Submit enqueues a teardown job. It never blocks the tick thread for
// longer than a channel send into a buffered queue.
func (r *reaper) Submit(job reapJob) { r.jobs <- job }

// Close stops accepting new jobs and waits for the drain to finish.
func (r *reaper) Close() {
	close(r.jobs)
	<-r.done
}
