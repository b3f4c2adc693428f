package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slbailey/airengine/internal/buffer"
	"github.com/slbailey/airengine/internal/clock"
	aerr "github.com/slbailey/airengine/internal/errors"
	"github.com/slbailey/airengine/internal/producer"
	"github.com/slbailey/airengine/internal/rational"
)

// DecoderFactory resolves a Segment's asset_uri to a concrete Decoder.
// Tagged-variant dispatch (file-backed, pad, test-pattern) lives on the
// caller's side of this factory, not in an open type hierarchy here.
type DecoderFactory func(seg Segment) (producer.Decoder, error)

// Config holds the Pipeline Manager's construction-time knobs. Open
// questions in spec.md §9 (HOLD_MAX_MS, epoch drift tolerance) are
// resolved here as configuration values, per the spec's own framing.
type Config struct {
	ChannelID      string
	Fps            rational.Fps
	SampleRateHz   int
	AudioChannels  int
	SamplesPerTick int

	PadWidth, PadHeight int

	VideoBufferCapacity     int
	AudioRingCapacitySamples int

	// HoldMaxMs bounds DEGRADED_TAKE_MODE before falling back to pad.
	HoldMaxMs int64
	// EpochDriftToleranceUs is the epoch drift tolerance. Nothing in this
	// package reads it: the tick loop makes no drift check and never ends
	// a session for drift.
	EpochDriftToleranceUs int64
	// MinAudioPrimeMs is the audio depth Prime tries to reach before a
	// TickProducer is installed as a successor. Prime also succeeds with
	// less, when the decoder runs out of pending audio first.
	MinAudioPrimeMs int64
	// MinVideoPrimeFrames is the video frame count eligibility threshold.
	// It is not consulted: Prime always pushes exactly one frame.
	MinVideoPrimeFrames int
	// MinSegmentHeadroomFrames is the segment-seam lead time, in output
	// ticks. The preparer does not consult it.
	MinSegmentHeadroomFrames int64
	// MinPrefeedLeadMs is MIN_PREFEED_LEAD_TIME, the lead-time feasibility
	// threshold for spec.md §4.7's externally-issued transition-command
	// protocol (Boundary.IssueSwitch). It gates only that legacy,
	// explicitly-commanded path, never the ordinary automatic A/B preload
	// (Boundary.AdvanceSwitchIssued), whose only admission precondition
	// is priming success.
	MinPrefeedLeadMs int64
	// RetryHeadroomMs is the headroom threshold for a decode retry. It is
	// not consulted: a block whose prime fails is dropped without a retry.
	RetryHeadroomMs int64

	PlanQueueDepth int
	ReapQueueDepth int

	DecoderFactory DecoderFactory
}

func (c *Config) applyDefaults() {
	if c.SampleRateHz == 0 {
		c.SampleRateHz = 48000
	}
	if c.AudioChannels == 0 {
		c.AudioChannels = 2
	}
	if c.SamplesPerTick == 0 {
		c.SamplesPerTick = c.SampleRateHz / 30
	}
	if c.PadWidth == 0 {
		c.PadWidth = 1280
	}
	if c.PadHeight == 0 {
		c.PadHeight = 720
	}
	if c.VideoBufferCapacity == 0 {
		c.VideoBufferCapacity = 15
	}
	if c.AudioRingCapacitySamples == 0 {
		c.AudioRingCapacitySamples = c.SampleRateHz * c.AudioChannels * 2
	}
	if c.HoldMaxMs == 0 {
		c.HoldMaxMs = 5000
	}
	if c.EpochDriftToleranceUs == 0 {
		c.EpochDriftToleranceUs = 250_000
	}
	if c.MinAudioPrimeMs == 0 {
		c.MinAudioPrimeMs = 500
	}
	if c.MinVideoPrimeFrames == 0 {
		c.MinVideoPrimeFrames = 1
	}
	if c.MinSegmentHeadroomFrames == 0 {
		frames := int64(0.25 * float64(c.Fps.Num) / float64(c.Fps.Den))
		if frames < 8 {
			frames = 8
		}
		c.MinSegmentHeadroomFrames = frames
	}
	if c.MinPrefeedLeadMs == 0 {
		c.MinPrefeedLeadMs = 5000
	}
	if c.RetryHeadroomMs == 0 {
		c.RetryHeadroomMs = 2000
	}
	if c.PlanQueueDepth == 0 {
		c.PlanQueueDepth = 2
	}
	if c.ReapQueueDepth == 0 {
		c.ReapQueueDepth = 8
	}
}

// preparedProducer is the preparer's output, not yet stamped as the
// committed successor — that stamp is applied only when the manager
// takes it into the B slot.
type preparedProducer struct {
	blockID  string
	segIndex int
	prod     *producer.TickProducer
	video    *buffer.VideoBuffer
	audio    *buffer.AudioRing
}

// Manager is the A/B tick-loop state machine: the Pipeline Manager.
type Manager struct {
	cfg    Config
	clock  *clock.MasterClock
	arena  *Arena
	reap   *reaper
	log    *slog.Logger
	pad    *producer.PadProducer
	evid   EvidenceEmitter

	sinkMu sync.RWMutex
	sink   FrameSink

	mu                     sync.Mutex
	a                      slot
	b                      slot
	bCommittedBlockID      string
	activePlan             *BlockPlan
	activeSegmentIndex     int
	blockActivationFrame   int64
	segmentActivationFrame int64
	fenceTick              int64
	nextSeamFrame          int64
	boundary               *Boundary
	inDegraded             bool
	degradedDeadlineMonoNs int64
	haveLastGood           bool
	lastGoodFrame          buffer.FrameData

	previewKind     string // "" | "block" | "segment"
	previewPlan     *BlockPlan
	previewSegIndex int

	sessionFrameIndex atomic.Int64
	stopping          atomic.Bool
	stopOnce          sync.Once
	stoppedCh         chan struct{}

	planQueue chan *BlockPlan
	prepareCh chan struct{}
	doneCh    chan struct{}

	droppedSinkFrames atomic.Int64
	padEmits          atomic.Int64

	cueQueue chan []byte
}

// New constructs a Manager anchored to epoch. Start must be called to
// begin the tick loop.
func New(cfg Config, epoch clock.SessionEpoch, evid EvidenceEmitter, log *slog.Logger) *Manager {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	mc := clock.New(epoch, cfg.Fps)
	m := &Manager{
		cfg:       cfg,
		clock:     mc,
		arena:     NewArena(),
		log:       log.With("component", "pipeline_manager", "channel_id", cfg.ChannelID),
		evid:      evid,
		pad:       producer.NewPadProducer(cfg.PadWidth, cfg.PadHeight, cfg.SamplesPerTick*cfg.AudioChannels, cfg.Fps),
		a:         emptySlot(),
		b:         emptySlot(),
		planQueue: make(chan *BlockPlan, cfg.PlanQueueDepth),
		prepareCh: make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
		cueQueue:  make(chan []byte, 8),
	}
	m.reap = newReaper(m.log, cfg.ReapQueueDepth)
	return m
}

// AttachSink binds the downstream Encoder/Mux Sink. Absent sink is legal
// discard, never emission suppression: the tick loop keeps running and
// counting dropped frames.
func (m *Manager) AttachSink(sink FrameSink) {
	m.sinkMu.Lock()
	m.sink = sink
	m.sinkMu.Unlock()
}

// DetachSink removes the current sink.
func (m *Manager) DetachSink() {
	m.sinkMu.Lock()
	m.sink = nil
	m.sinkMu.Unlock()
}

func (m *Manager) getSink() FrameSink {
	m.sinkMu.RLock()
	defer m.sinkMu.RUnlock()
	return m.sink
}

// markSinkDiscontinuity tells the attached sink, if it opts in via
// discontinuityMarker, that an A/B switch just happened. Block and
// segment swaps both call this so content-before-pad gating downstream
// (e.g. the Encoder/Mux Sink's IDR gate) resets on every seam.
func (m *Manager) markSinkDiscontinuity() {
	if dm, ok := m.getSink().(discontinuityMarker); ok {
		dm.MarkDiscontinuity()
	}
}

// ForwardCue queues a scheduler-supplied SCTE cue payload to be handed to
// the attached sink at the start of the next tick. The Pipeline Manager
// performs no cue generation or validation of the payload itself — it is
// opaque bytes produced by internal/scte.Encode — only ordering it
// against tick boundaries like every other emission. A full queue drops
// the cue; cues are advisory traffic-manager signaling, not part of the
// frame-accuracy contract this package enforces.
func (m *Manager) ForwardCue(payload []byte) bool {
	select {
	case m.cueQueue <- payload:
		return true
	default:
		return false
	}
}

func (m *Manager) drainCues() {
	for {
		select {
		case payload := <-m.cueQueue:
			if cf, ok := m.getSink().(cueForwarder); ok {
				if err := cf.EmitCue(payload); err != nil {
					m.log.Warn("cue forwarding failed", "error", err)
				}
			}
		default:
			return
		}
	}
}

// FeedBlockPlan enqueues a BlockPlan. Queue depth is bounded to 2 blocks
// in flight.
func (m *Manager) FeedBlockPlan(plan *BlockPlan) error {
	if m.stopping.Load() {
		return aerr.NewControlError("feed_block_plan.session_ended", fmt.Errorf("channel %s", m.cfg.ChannelID))
	}
	select {
	case m.planQueue <- plan:
		select {
		case m.prepareCh <- struct{}{}:
		default:
		}
		return nil
	default:
		return aerr.NewControlError("feed_block_plan.queue_full", fmt.Errorf("channel %s", m.cfg.ChannelID))
	}
}

// Start launches the tick thread and the SeamPreparer worker.
func (m *Manager) Start(ctx context.Context) {
	go m.runPreparer(ctx)
	go m.runTickLoop(ctx)
}

// StopChannel requests immediate graceful shutdown. Idempotent; bounded
// completion time because the tick loop checks the stopping flag every
// iteration (a period never longer than one frame).
func (m *Manager) StopChannel() {
	m.stopOnce.Do(func() {
		m.stopping.Store(true)
	})
	select {
	case <-m.stoppedCh:
	case <-time.After(5 * time.Second):
	}
}

// Health reports a minimal readiness snapshot for the control surface.
type Health struct {
	ChannelID         string
	SessionFrameIndex int64
	DroppedSinkFrames int64
	PadEmits          int64
	ActiveBlockID     string
	BoundaryState     string
}

// Health returns a point-in-time readiness snapshot.
func (m *Manager) Health() Health {
	m.mu.Lock()
	blockID := ""
	if m.activePlan != nil {
		blockID = m.activePlan.BlockID
	}
	var bs string
	if m.boundary != nil {
		bs = m.boundary.State().String()
	}
	m.mu.Unlock()
	return Health{
		ChannelID:         m.cfg.ChannelID,
		SessionFrameIndex: m.sessionFrameIndex.Load(),
		DroppedSinkFrames: m.droppedSinkFrames.Load(),
		PadEmits:          m.padEmits.Load(),
		ActiveBlockID:     blockID,
		BoundaryState:     bs,
	}
}

// runTickLoop is the hard-real-time tick thread. Its only permitted wait
// is sleeping until the next tick's monotonic deadline.
func (m *Manager) runTickLoop(ctx context.Context) {
	defer close(m.stoppedCh)
	for {
		if m.stopping.Load() {
			return
		}
		select {
		case <-ctx.Done():
			m.stopping.Store(true)
			return
		default:
		}

		n := m.sessionFrameIndex.Load()
		m.clock.SleepUntilTick(n)

		if m.stopping.Load() {
			return
		}

		m.maybeBlockSwap(n)
		m.maybeSegmentSwap(n)
		m.drainCues()

		frame, cause, ok := m.popActiveFrame()
		if !ok {
			frame = m.padFrame(n)
			m.padEmits.Add(1)
			m.log.Debug("pad emitted", "tick", n, "cause", cause)
		}

		m.emit(frame)
		m.sessionFrameIndex.Store(n + 1)
	}
}

func (m *Manager) padFrame(n int64) buffer.FrameData {
	m.mu.Lock()
	degraded := m.inDegraded
	lastGood := m.lastGoodFrame
	haveLastGood := m.haveLastGood
	deadline := m.degradedDeadlineMonoNs
	m.mu.Unlock()

	if degraded && haveLastGood && m.clock.NowMonoNs() < deadline {
		held := lastGood
		held.AudioSamples = make([]int16, m.cfg.SamplesPerTick*m.cfg.AudioChannels)
		held.PtsUs = m.clock.PresentationTimeOfTick(n)
		held.DurationUs = m.cfg.Fps.FramePeriodUs()
		return held
	}
	if degraded {
		m.mu.Lock()
		m.inDegraded = false
		m.mu.Unlock()
	}
	m.pad.Reset(n)
	return m.pad.NextFrame()
}

// emit forwards one tick's frame to the sink. An absent sink is a
// legal discard: the drop counter increments but the tick proceeds.
func (m *Manager) emit(frame buffer.FrameData) {
	sink := m.getSink()
	if sink == nil {
		m.droppedSinkFrames.Add(1)
		return
	}
	if err := sink.EmitVideo(frame.VideoPlane, frame.PtsUs, frame.DurationUs); err != nil {
		m.droppedSinkFrames.Add(1)
	}
	if len(frame.AudioSamples) > 0 {
		_ = sink.EmitAudio(frame.AudioSamples, frame.PtsUs)
	}
}

// popActiveFrame pops one video frame and samples_per_tick audio samples
// from the A slot. It never blocks.
func (m *Manager) popActiveFrame() (buffer.FrameData, UnderflowCause, bool) {
	m.mu.Lock()
	vh, ah := m.a.video, m.a.audio
	m.mu.Unlock()

	if vh == invalidHandle {
		return buffer.FrameData{}, CauseProducerGated, false
	}
	vb := m.arena.GetVideoBuffer(vh)
	if vb == nil {
		return buffer.FrameData{}, CauseProducerGated, false
	}
	var fd buffer.FrameData
	if !vb.TryPopFrame(&fd) {
		return buffer.FrameData{}, CauseBufferTrulyEmpty, false
	}

	want := m.cfg.SamplesPerTick * m.cfg.AudioChannels
	out := make([]int16, want)
	if ab := m.arena.GetAudioBuffer(ah); ab != nil {
		ab.TryPopSamples(want, out)
	}
	fd.AudioSamples = out

	m.mu.Lock()
	m.lastGoodFrame = fd
	m.haveLastGood = true
	m.mu.Unlock()
	return fd, "", true
}

// maybeBlockSwap performs the mechanical A<-B pointer swap once tick n
// reaches the active block's fence tick. It never decodes.
func (m *Manager) maybeBlockSwap(n int64) {
	m.mu.Lock()
	if m.activePlan == nil || n < m.fenceTick {
		m.mu.Unlock()
		return
	}
	ready := m.previewKind == "block" && m.b.producer != invalidHandle &&
		m.bCommittedBlockID != "" && m.boundary != nil && m.boundary.State() == BoundarySwitchIssued
	if !ready {
		m.mu.Unlock()
		m.enterDegradedOrLoad(n)
		return
	}

	oldA := m.a
	m.a = m.b
	m.b = emptySlot()
	plan := m.previewPlan
	m.activePlan = plan
	m.activeSegmentIndex = 0
	m.blockActivationFrame = n
	m.segmentActivationFrame = n
	m.fenceTick = m.clock.FenceTickForEndUtc(plan.EndUtcUs)
	bnd := m.boundary
	m.bCommittedBlockID = ""
	m.previewKind = ""
	m.previewPlan = nil
	m.inDegraded = false
	m.mu.Unlock()

	if bnd != nil {
		_ = bnd.Advance(BoundaryLive)
	}
	m.markSinkDiscontinuity()
	if oldA.producer != invalidHandle {
		m.reap.Submit(reapJob{
			producer: m.arena.RemoveProducer(oldA.producer),
			videoBuf: m.arena.RemoveVideoBuffer(oldA.video),
			audioBuf: m.arena.RemoveAudioBuffer(oldA.audio),
			blockID:  oldA.blockID,
			segIndex: oldA.segIndex,
		})
	}
	if m.evid != nil {
		m.evid.EmitBlockFence(oldA.blockID, plan.BlockID, n, false)
		m.evid.EmitBlockStart(plan.BlockID, n)
	}
	select {
	case m.prepareCh <- struct{}{}:
	default:
	}
}

// enterDegradedOrLoad runs when a block fence is reached with no ready
// committed successor. For the first-ever block (A slot empty) it only
// wakes the SeamPreparer, which loads that block off the tick thread; any
// later miss enters DEGRADED_TAKE_MODE, holding
// the last good frame (video) with silence (audio) for up to HoldMaxMs
// before falling back to pad.
func (m *Manager) enterDegradedOrLoad(n int64) {
	m.mu.Lock()
	firstLoad := m.a.producer == invalidHandle
	alreadyDegraded := m.inDegraded
	m.mu.Unlock()

	if firstLoad {
		select {
		case m.prepareCh <- struct{}{}:
		default:
		}
		return
	}
	if alreadyDegraded {
		return
	}
	m.mu.Lock()
	m.inDegraded = true
	m.degradedDeadlineMonoNs = m.clock.NowMonoNs() + m.cfg.HoldMaxMs*int64(time.Millisecond)
	m.mu.Unlock()
	m.log.Warn("block fence reached without ready successor, entering degraded take mode", "tick", n)
}

// maybeSegmentSwap advances to the next segment in the active block once
// its cumulative frame count is reached, if a prepared successor segment
// producer is available. Otherwise the active buffer simply runs dry and
// the tick loop's pad-and-hold policy covers the gap.
func (m *Manager) maybeSegmentSwap(n int64) {
	m.mu.Lock()
	plan := m.activePlan
	if plan == nil || m.activeSegmentIndex+1 >= len(plan.Segments) {
		m.mu.Unlock()
		return
	}
	seam := m.segmentSeamFrameLocked()
	if n < seam {
		m.mu.Unlock()
		return
	}
	ready := m.previewKind == "segment" && m.previewSegIndex == m.activeSegmentIndex+1 &&
		m.b.producer != invalidHandle
	if !ready {
		m.mu.Unlock()
		return
	}
	oldA := m.a
	m.a = m.b
	m.b = emptySlot()
	m.activeSegmentIndex++
	m.segmentActivationFrame = n
	m.previewKind = ""
	segIdx := m.activeSegmentIndex
	blockID := plan.BlockID
	m.mu.Unlock()

	m.markSinkDiscontinuity()
	if oldA.producer != invalidHandle {
		m.reap.Submit(reapJob{
			producer: m.arena.RemoveProducer(oldA.producer),
			videoBuf: m.arena.RemoveVideoBuffer(oldA.video),
			audioBuf: m.arena.RemoveAudioBuffer(oldA.audio),
			blockID:  oldA.blockID,
			segIndex: oldA.segIndex,
		})
	}
	if m.evid != nil {
		m.evid.EmitSegmentEnd(fmt.Sprintf("%s/%d", blockID, segIdx-1), n, "COMPLETE", "seam_reached")
	}
	select {
	case m.prepareCh <- struct{}{}:
	default:
	}
}

// segmentSeamFrameLocked computes the output tick at which the active
// segment ends, given its planned FrameCount. Caller holds m.mu.
func (m *Manager) segmentSeamFrameLocked() int64 {
	frame := m.blockActivationFrame
	for i := 0; i <= m.activeSegmentIndex && i < len(m.activePlan.Segments); i++ {
		frame += m.activePlan.Segments[i].FrameCount
	}
	return frame
}

// runPreparer is the SeamPreparer: the only goroutine that touches
// decoders outside the fill loops it launches. It runs off the tick
// thread, never blocking it.
func (m *Manager) runPreparer(ctx context.Context) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.stopping.Load() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-m.prepareCh:
		case <-ticker.C:
		}
		m.prepareStep()
	}
}

func (m *Manager) prepareStep() {
	m.mu.Lock()
	needsFirstBlock := m.a.producer == invalidHandle && m.previewKind == ""
	needsBlockPreview := m.a.producer != invalidHandle && m.previewKind == "" &&
		m.activePlan != nil
	needsSegmentPreview := m.activePlan != nil && m.previewKind == "" &&
		m.activeSegmentIndex+1 < len(m.activePlan.Segments)
	m.mu.Unlock()

	if needsFirstBlock {
		select {
		case plan := <-m.planQueue:
			m.prepareBlock(plan, true)
		default:
		}
		return
	}
	if needsSegmentPreview {
		m.mu.Lock()
		plan := m.activePlan
		nextIdx := m.activeSegmentIndex + 1
		m.mu.Unlock()
		if nextIdx < len(plan.Segments) {
			m.prepareSegment(plan, nextIdx)
			return
		}
	}
	if needsBlockPreview {
		select {
		case plan := <-m.planQueue:
			m.prepareBlock(plan, false)
		default:
		}
	}
}

func (m *Manager) loadDecoder(seg Segment) (producer.Decoder, error) {
	if m.cfg.DecoderFactory == nil {
		return nil, fmt.Errorf("pipeline: no decoder factory configured")
	}
	return m.cfg.DecoderFactory(seg)
}

// prepareBlock primes the first segment of plan off the tick thread and,
// on success, installs it as the committed block successor.
func (m *Manager) prepareBlock(plan *BlockPlan, first bool) {
	if len(plan.Segments) == 0 {
		m.log.Error("block plan has no segments, dropping", "block_id", plan.BlockID)
		return
	}
	seg := plan.Segments[0]
	dec, err := m.loadDecoder(seg)
	if err != nil {
		m.log.Error("decoder factory failed, dropping block", "block_id", plan.BlockID, "error", err)
		return
	}
	tp := producer.NewTickProducer(plan.BlockID, seg.EventID, dec, m.cfg.Fps, m.cfg.Fps)

	// Rebase this producer's output grid onto the absolute session tick
	// it will actually activate at, so PtsUs continues the session-wide
	// grid instead of restarting at 0 on every block seam (§8 invariants
	// 2/3). The first block activates at its planned start tick; a
	// successor activates at the fence tick of the block it replaces,
	// which is already known from that block's own activation.
	var startFrame int64
	if first {
		startFrame = m.clock.TickIndexOfUtc(plan.StartUtcUs)
	} else {
		m.mu.Lock()
		startFrame = m.fenceTick
		m.mu.Unlock()
	}
	tp.SetBaseTick(startFrame)

	vb := buffer.NewVideoBuffer(m.cfg.VideoBufferCapacity)
	ab := buffer.NewAudioRing(m.cfg.AudioRingCapacitySamples, m.cfg.SampleRateHz, m.cfg.AudioChannels)
	if err := tp.Prime(vb, ab, m.cfg.MinAudioPrimeMs); err != nil {
		m.log.Error("prime failed, dropping block", "block_id", plan.BlockID, "error", err)
		_ = dec.Close()
		return
	}

	ph := m.arena.AddProducer(tp)
	vh := m.arena.AddVideoBuffer(vb)
	ah := m.arena.AddAudioBuffer(ab)
	go fillLoop(m.arena, ph, vh, ah, func(err error) {
		m.log.Warn("fill loop stopped on error", "block_id", plan.BlockID, "error", err)
	})

	if first {
		m.mu.Lock()
		m.a = slot{producer: ph, video: vh, audio: ah, blockID: plan.BlockID, segIndex: 0}
		m.activePlan = plan
		m.activeSegmentIndex = 0
		m.blockActivationFrame = startFrame
		m.segmentActivationFrame = startFrame
		m.fenceTick = m.clock.FenceTickForEndUtc(plan.EndUtcUs)
		m.mu.Unlock()
		if m.evid != nil {
			m.evid.EmitBlockStart(plan.BlockID, startFrame)
		}
		return
	}

	bnd := NewBoundary(plan.BlockID, plan.StartUtcUs/1000)
	if err := bnd.Advance(BoundaryPlanned); err != nil {
		m.log.Error("boundary planned transition failed", "block_id", plan.BlockID, "error", err)
		m.reap.Submit(reapJob{producer: m.arena.RemoveProducer(ph), videoBuf: m.arena.RemoveVideoBuffer(vh), audioBuf: m.arena.RemoveAudioBuffer(ah), blockID: plan.BlockID})
		return
	}
	if err := bnd.Advance(BoundaryPreloadIssued); err != nil {
		m.log.Error("boundary preload transition failed", "block_id", plan.BlockID, "error", err)
		m.reap.Submit(reapJob{producer: m.arena.RemoveProducer(ph), videoBuf: m.arena.RemoveVideoBuffer(vh), audioBuf: m.arena.RemoveAudioBuffer(ah), blockID: plan.BlockID})
		return
	}
	if err := bnd.Advance(BoundarySwitchScheduled); err != nil {
		m.log.Error("boundary schedule transition failed", "block_id", plan.BlockID, "error", err)
		m.reap.Submit(reapJob{producer: m.arena.RemoveProducer(ph), videoBuf: m.arena.RemoveVideoBuffer(vh), audioBuf: m.arena.RemoveAudioBuffer(ah), blockID: plan.BlockID})
		return
	}
	if err := bnd.AdvanceSwitchIssued(); err != nil {
		m.log.Error("boundary switch issuance failed, successor unavailable for this fence", "block_id", plan.BlockID, "error", err)
		m.reap.Submit(reapJob{producer: m.arena.RemoveProducer(ph), videoBuf: m.arena.RemoveVideoBuffer(vh), audioBuf: m.arena.RemoveAudioBuffer(ah), blockID: plan.BlockID})
		return
	}

	m.mu.Lock()
	m.b = slot{producer: ph, video: vh, audio: ah, blockID: plan.BlockID, segIndex: 0}
	m.previewKind = "block"
	m.previewPlan = plan
	m.bCommittedBlockID = plan.BlockID
	m.boundary = bnd
	m.mu.Unlock()
}

// prepareSegment primes segment idx of plan and, on success, installs it
// as the B slot's segment-level preview. The stamp (bCommittedBlockID is
// block-scoped and untouched here) is implicit in previewSegIndex being
// set only once the producer is installed in the B slot.
func (m *Manager) prepareSegment(plan *BlockPlan, idx int) {
	seg := plan.Segments[idx]
	dec, err := m.loadDecoder(seg)
	if err != nil {
		m.log.Error("decoder factory failed for segment, will retry", "block_id", plan.BlockID, "segment_index", idx, "error", err)
		return
	}
	tp := producer.NewTickProducer(plan.BlockID, seg.EventID, dec, m.cfg.Fps, m.cfg.Fps)

	// Same session-tick rebasing as prepareBlock: a segment seam must
	// continue the grid, not restart it, so stamp the base tick from the
	// seam frame this segment will actually activate at.
	m.mu.Lock()
	tp.SetBaseTick(m.segmentSeamFrameLocked())
	m.mu.Unlock()

	vb := buffer.NewVideoBuffer(m.cfg.VideoBufferCapacity)
	ab := buffer.NewAudioRing(m.cfg.AudioRingCapacitySamples, m.cfg.SampleRateHz, m.cfg.AudioChannels)
	if err := tp.Prime(vb, ab, m.cfg.MinAudioPrimeMs); err != nil {
		m.log.Error("prime failed for segment, will retry", "block_id", plan.BlockID, "segment_index", idx, "error", err)
		_ = dec.Close()
		return
	}
	ph := m.arena.AddProducer(tp)
	vh := m.arena.AddVideoBuffer(vb)
	ah := m.arena.AddAudioBuffer(ab)
	go fillLoop(m.arena, ph, vh, ah, func(err error) {
		m.log.Warn("fill loop stopped on error", "block_id", plan.BlockID, "segment_index", idx, "error", err)
	})

	m.mu.Lock()
	if m.activePlan != plan || m.activeSegmentIndex+1 != idx {
		m.mu.Unlock()
		m.reap.Submit(reapJob{producer: m.arena.RemoveProducer(ph), videoBuf: m.arena.RemoveVideoBuffer(vh), audioBuf: m.arena.RemoveAudioBuffer(ah), blockID: plan.BlockID, segIndex: idx})
		return
	}
	m.b = slot{producer: ph, video: vh, audio: ah, blockID: plan.BlockID, segIndex: idx}
	m.previewKind = "segment"
	m.previewSegIndex = idx
	m.mu.Unlock()
}
