// Package metrics backs the health/readiness surface named in
// SPEC_FULL.md: a prometheus.Collector that turns every registered
// channel's pipeline.Manager.Health() snapshot into gauge/counter
// series on each scrape, without requiring the Pipeline Manager itself
// to know anything about Prometheus. Serving an HTTP /metrics endpoint
// is explicitly out of scope; Registry only exposes a prometheus.Gatherer
// for whatever process embeds it to wire up.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/slbailey/airengine/internal/pipeline"
)

// Registry collects Health() snapshots from every registered channel on
// each Prometheus scrape. Grounded on the teacher's ConnectionCount()
// accessor pattern in server.go: a point-in-time read of live state
// rather than incrementally-maintained counters, generalized here to a
// prometheus.Collector's pull model.
type Registry struct {
	reg *prometheus.Registry

	mu       sync.RWMutex
	managers map[string]*pipeline.Manager

	sessionFrameIndexDesc *prometheus.Desc
	droppedSinkFramesDesc *prometheus.Desc
	padEmitsDesc          *prometheus.Desc
	boundaryStateDesc     *prometheus.Desc
	activeBlockDesc       *prometheus.Desc
}

var _ prometheus.Collector = (*Registry)(nil)

// NewRegistry constructs a Registry and registers it with a fresh
// prometheus.Registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg:      prometheus.NewRegistry(),
		managers: make(map[string]*pipeline.Manager),
		sessionFrameIndexDesc: prometheus.NewDesc(
			"airengine_session_frame_index",
			"Current output tick index since session epoch.",
			[]string{"channel_id"}, nil,
		),
		droppedSinkFramesDesc: prometheus.NewDesc(
			"airengine_dropped_sink_frames_total",
			"Frames dropped because an attached sink's buffer was full.",
			[]string{"channel_id"}, nil,
		),
		padEmitsDesc: prometheus.NewDesc(
			"airengine_pad_emits_total",
			"Ticks that emitted a pad frame instead of content.",
			[]string{"channel_id"}, nil,
		),
		boundaryStateDesc: prometheus.NewDesc(
			"airengine_boundary_state",
			"Current Boundary lifecycle state, one time series per (channel_id, state) pinned at value 1.",
			[]string{"channel_id", "state"}, nil,
		),
		activeBlockDesc: prometheus.NewDesc(
			"airengine_active_block_info",
			"Info series identifying the currently active block, pinned at value 1.",
			[]string{"channel_id", "block_id"}, nil,
		),
	}
	r.reg.MustRegister(r)
	return r
}

// RegisterChannel starts including channelID's Health() snapshot on
// every scrape.
func (r *Registry) RegisterChannel(channelID string, mgr *pipeline.Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[channelID] = mgr
}

// UnregisterChannel stops including channelID once its session has
// stopped.
func (r *Registry) UnregisterChannel(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.managers, channelID)
}

// Gatherer exposes the underlying prometheus.Registry for whatever
// process embeds this package to serve over HTTP, or scrape directly in
// tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) Describe(ch chan<- *prometheus.Desc) {
	ch <- r.sessionFrameIndexDesc
	ch <- r.droppedSinkFramesDesc
	ch <- r.padEmitsDesc
	ch <- r.boundaryStateDesc
	ch <- r.activeBlockDesc
}

func (r *Registry) Collect(ch chan<- prometheus.Metric) {
	r.mu.RLock()
	snapshot := make(map[string]*pipeline.Manager, len(r.managers))
	for k, v := range r.managers {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	for channelID, mgr := range snapshot {
		h := mgr.Health()
		ch <- prometheus.MustNewConstMetric(r.sessionFrameIndexDesc, prometheus.GaugeValue, float64(h.SessionFrameIndex), channelID)
		ch <- prometheus.MustNewConstMetric(r.droppedSinkFramesDesc, prometheus.CounterValue, float64(h.DroppedSinkFrames), channelID)
		ch <- prometheus.MustNewConstMetric(r.padEmitsDesc, prometheus.CounterValue, float64(h.PadEmits), channelID)
		if h.BoundaryState != "" {
			ch <- prometheus.MustNewConstMetric(r.boundaryStateDesc, prometheus.GaugeValue, 1, channelID, h.BoundaryState)
		}
		if h.ActiveBlockID != "" {
			ch <- prometheus.MustNewConstMetric(r.activeBlockDesc, prometheus.GaugeValue, 1, channelID, h.ActiveBlockID)
		}
	}
}
