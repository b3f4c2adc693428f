package mux

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/slbailey/airengine/internal/bufpool"
)

// Config holds Muxer construction-time knobs.
type Config struct {
	ChannelID         string
	ProgramNumber     uint16
	PatPmtHeartbeatMs int64 // wall-clock heartbeat ceiling; spec requires <= 500ms
	PcrIntervalMs     int64 // target PCR insertion interval; spec requires 20-100ms
	EnableSCTE        bool
}

func (c *Config) applyDefaults() {
	if c.ProgramNumber == 0 {
		c.ProgramNumber = 1
	}
	if c.PatPmtHeartbeatMs == 0 {
		c.PatPmtHeartbeatMs = 400
	}
	if c.PcrIntervalMs == 0 {
		c.PcrIntervalMs = 40
	}
}

// Muxer is a persistent, per-channel MPEG-TS muxer. It implements
// pipeline.FrameSink by structural typing (EmitVideo/EmitAudio) so the
// Pipeline Manager depends only on its own narrow interface.
type Muxer struct {
	cfg Config
	log *slog.Logger

	cc     *ccTracker
	sinks  *sinkSet

	mu             sync.Mutex
	streams        map[Pid]StreamType
	keyGateOpen    bool // IDR gating: no video emitted before the first keyframe
	forceKeyOnNext bool // set by MarkDiscontinuity; A/B switch resets the gate
	lastPcr90k     int64
	nextPcrDue     time.Time
	lastPatPmt     time.Time

	videoPtsMonotone atomic64
	audioPtsMonotone atomic64
}

type atomic64 struct {
	mu  sync.Mutex
	val int64
	set bool
}

func (a *atomic64) checkMonotone(v int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.set && v <= a.val {
		return false
	}
	a.val = v
	a.set = true
	return true
}

// New constructs a Muxer with fixed PIDs for video, audio, and
// (optionally) a reserved SCTE passthrough PID.
func New(cfg Config, log *slog.Logger) *Muxer {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	streams := map[Pid]StreamType{
		PidVideo: StreamTypeH264,
		PidAudio: StreamTypeAAC,
	}
	if cfg.EnableSCTE {
		streams[PidScte] = StreamTypeSCTE
	}
	return &Muxer{
		cfg:     cfg,
		log:     log.With("component", "mux", "channel_id", cfg.ChannelID),
		cc:      newCCTracker(),
		sinks:   newSinkSet(),
		streams: streams,
	}
}

// AttachSink registers a non-blocking byte sink under id.
func (m *Muxer) AttachSink(id string, sink Sink) { m.sinks.attach(id, sink) }

// DetachSink removes a previously attached sink.
func (m *Muxer) DetachSink(id string) { m.sinks.detach(id) }

// SinkCount reports how many sinks are currently attached.
func (m *Muxer) SinkCount() int { return m.sinks.count() }

// MarkDiscontinuity signals an A/B switch: the IDR gate is reset, so the
// next video frame is again flagged as a keyframe (random_access_indicator
// set). Video packets carry no PCR; audio remains the PCR carrier.
func (m *Muxer) MarkDiscontinuity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceKeyOnNext = true
}

// Start launches the PAT/PMT wall-clock heartbeat loop, which keeps
// emitting table packets even when the media queue is empty —
// LAW-TS-DISCOVERABILITY. The loop emits no PCR: a PCR goes out only on
// audio packets, so none is sent while no audio is being muxed.
func (m *Muxer) Start(ctx context.Context) {
	go m.heartbeatLoop(ctx)
}

func (m *Muxer) heartbeatLoop(ctx context.Context) {
	interval := time.Duration(m.cfg.PatPmtHeartbeatMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			due := time.Since(m.lastPatPmt) >= interval
			m.mu.Unlock()
			if due {
				m.emitPatPmt()
			}
		}
	}
}

func (m *Muxer) emitPatPmt() {
	pat := packetizePAT(m.cc, m.cfg.ProgramNumber)
	m.mu.Lock()
	streams := make(map[Pid]StreamType, len(m.streams))
	for k, v := range m.streams {
		streams[k] = v
	}
	m.mu.Unlock()
	pmt := packetizePMT(m.cc, m.cfg.ProgramNumber, streams)
	m.sinks.fanout(append(pat, pmt...))
	m.mu.Lock()
	m.lastPatPmt = time.Now()
	m.mu.Unlock()
}

// EmitCue packetizes a pre-encoded SCTE-35 cue payload onto the reserved
// SCTE PID, if SCTE is enabled for this channel. cuePayload is opaque to
// the muxer: internal/scte owns its wire shape, this is plumbing only.
func (m *Muxer) EmitCue(cuePayload []byte) error {
	if !m.cfg.EnableSCTE {
		return nil
	}
	pkt := wrapSectionInTSPacket(PidScte, cuePayload, m.cc)
	m.sinks.fanout(pkt)
	return nil
}

// EmitVideo packetizes one video access unit. Packets are withheld
// until the IDR gate opens (content-before-pad gating is enforced by
// the Pipeline Manager's call ordering; this gate only enforces
// "no video before the first keyframe seen"). Audio is the PCR master
// from session start, so video never carries an adaptation-field PCR.
func (m *Muxer) EmitVideo(plane []byte, ptsUs, durationUs int64) error {
	pts90k := usTo90k(ptsUs)

	m.mu.Lock()
	key := m.forceKeyOnNext || !m.keyGateOpen
	m.forceKeyOnNext = false
	if key {
		m.keyGateOpen = true
	}
	m.mu.Unlock()

	if !m.videoPtsMonotone.checkMonotone(pts90k) {
		m.log.Warn("non-monotone video pts observed, emitting anyway", "pts_90k", pts90k)
	}

	frame := Frame{
		Pid:      PidVideo,
		StreamID: pesStreamIDVideo,
		Pts:      uint64(pts90k),
		Dts:      uint64(pts90k),
		Key:      key,
		Payload:  plane,
	}
	packets := packetizePES(frame, m.cc, -1)
	buf := flattenPackets(packets)
	m.sinks.fanout(buf)
	bufpool.Put(buf)

	m.maybeHeartbeat()
	return nil
}

// EmitAudio packetizes one audio chunk. Audio is the sole PCR carrier in
// this muxer (PidAudio is also the fixed pcr_pid advertised in the PMT,
// per spec's "audio authority at startup": video PTS is derived relative
// to audio), so video packets never carry an adaptation-field PCR.
func (m *Muxer) EmitAudio(samples []int16, ptsUs int64) error {
	pts90k := usTo90k(ptsUs)
	if !m.audioPtsMonotone.checkMonotone(pts90k) {
		m.log.Warn("non-monotone audio pts observed, emitting anyway", "pts_90k", pts90k)
	}

	pcr := int64(-1)
	m.mu.Lock()
	if time.Now().After(m.nextPcrDue) {
		pcr = pts90k
		m.nextPcrDue = time.Now().Add(time.Duration(m.cfg.PcrIntervalMs) * time.Millisecond)
	}
	m.mu.Unlock()

	payload := pcmToBytes(samples)
	frame := Frame{
		Pid:      PidAudio,
		StreamID: pesStreamIDAudio,
		Pts:      uint64(pts90k),
		Dts:      uint64(pts90k),
		Payload:  payload,
	}
	packets := packetizePES(frame, m.cc, pcr)
	bufpool.Put(payload)
	buf := flattenPackets(packets)
	m.sinks.fanout(buf)
	bufpool.Put(buf)
	m.maybeHeartbeat()
	return nil
}

// flattenPackets copies a sequence of fixed-size TS packets into one
// contiguous buffer pulled from bufpool, since sinkSet.fanout takes a
// single byte slice per call. The caller must return it with
// bufpool.Put once fanout has returned; fanout is synchronous, so no
// sink retains a reference past that point.
func flattenPackets(packets [][]byte) []byte {
	total := len(packets) * tsPacketSize
	buf := bufpool.Get(total)
	for i, p := range packets {
		copy(buf[i*tsPacketSize:], p)
	}
	return buf
}

func (m *Muxer) maybeHeartbeat() {
	m.mu.Lock()
	due := time.Since(m.lastPatPmt) >= time.Duration(m.cfg.PatPmtHeartbeatMs)*time.Millisecond
	m.mu.Unlock()
	if due {
		m.emitPatPmt()
	}
}

func usTo90k(us int64) int64 {
	return us * 9 / 100
}

func pcmToBytes(samples []int16) []byte {
	out := bufpool.Get(len(samples) * 2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
