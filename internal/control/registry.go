package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/slbailey/airengine/internal/clock"
	"github.com/slbailey/airengine/internal/evidence"
	"github.com/slbailey/airengine/internal/mux"
	"github.com/slbailey/airengine/internal/pipeline"
	"github.com/slbailey/airengine/internal/rational"
	"github.com/slbailey/airengine/internal/scte"
)

// SinkFactory constructs the transport-specific mux.Sink a caller wants
// attached to a channel's Muxer. Kept outside internal/mux and
// internal/pipeline so neither core package depends on a transport.
type SinkFactory func(channelID, sinkID string) (mux.Sink, error)

// channelSession is one live playout channel: the Pipeline Manager, its
// attached Muxer, and the cancelFunc that tears both down together.
type channelSession struct {
	mgr    *pipeline.Manager
	mx     *mux.Muxer
	cancel context.CancelFunc
}

// Registry owns every live channel session in the process. It is the
// construction authority StartBlockPlanSession/StopChannel operate
// against; Server is the thin gRPC-shaped transport wrapping it.
type Registry struct {
	mu             sync.RWMutex
	sessions       map[string]*channelSession
	decoderFactory pipeline.DecoderFactory
	sinkFactory    SinkFactory
	evidenceHub    *evidence.Hub
	log            *slog.Logger

	onSessionStart func(channelID string, mgr *pipeline.Manager)
	onSessionStop  func(channelID string)
}

// NewRegistry constructs a Registry. decoderFactory and sinkFactory are
// injected by cmd/airengine, which owns concrete transport and decode
// backends; evidenceHub is shared process-wide.
func NewRegistry(decoderFactory pipeline.DecoderFactory, sinkFactory SinkFactory, evidenceHub *evidence.Hub, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		sessions:       make(map[string]*channelSession),
		decoderFactory: decoderFactory,
		sinkFactory:    sinkFactory,
		evidenceHub:    evidenceHub,
		log:            log.With("component", "control_registry"),
	}
}

// SetOnSessionStart registers fn, which, if set, is called synchronously after a channel's
// pipeline.Manager and mux.Muxer have been started. Generalizes the
// teacher's hooks.HookManager connection_accept-style lifecycle
// notification so cmd/airengine can attach process-wide collaborators
// (a metrics registry, an as-run consumer) without Registry needing to
// know either exists.
func (r *Registry) SetOnSessionStart(fn func(channelID string, mgr *pipeline.Manager)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSessionStart = fn
}

// SetOnSessionStop mirrors SetOnSessionStart for the connection_close side
// of the lifecycle, called after the session has been torn down.
func (r *Registry) SetOnSessionStop(fn func(channelID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSessionStop = fn
}

func (r *Registry) startSession(req StartBlockPlanSessionRequest) (StartBlockPlanSessionResponse, error) {
	fps, err := rational.NewFps(req.FpsNum, req.FpsDen)
	if err != nil {
		return StartBlockPlanSessionResponse{}, fmt.Errorf("control: invalid fps: %w", err)
	}

	r.mu.Lock()
	if _, exists := r.sessions[req.ChannelID]; exists {
		r.mu.Unlock()
		return StartBlockPlanSessionResponse{}, fmt.Errorf("control: channel %q already has a session", req.ChannelID)
	}
	r.mu.Unlock()

	epoch := clock.NewSessionEpoch()

	cfg := pipeline.Config{
		ChannelID:      req.ChannelID,
		Fps:            fps,
		SampleRateHz:   req.SampleRateHz,
		AudioChannels:  req.AudioChannels,
		PadWidth:       req.PadWidth,
		PadHeight:      req.PadHeight,
		DecoderFactory: r.decoderFactory,
	}

	evid := r.evidenceHub.Emitter(req.ChannelID)
	mgr := pipeline.New(cfg, epoch, evid, r.log)

	mx := mux.New(mux.Config{ChannelID: req.ChannelID}, r.log)
	mgr.AttachSink(mx)

	ctx, cancel := context.WithCancel(context.Background())
	mx.Start(ctx)
	mgr.Start(ctx)

	sess := &channelSession{mgr: mgr, mx: mx, cancel: cancel}

	r.mu.Lock()
	if _, exists := r.sessions[req.ChannelID]; exists {
		r.mu.Unlock()
		cancel()
		return StartBlockPlanSessionResponse{}, fmt.Errorf("control: channel %q already has a session", req.ChannelID)
	}
	r.sessions[req.ChannelID] = sess
	onStart := r.onSessionStart
	r.mu.Unlock()

	if onStart != nil {
		onStart(req.ChannelID, mgr)
	}

	return StartBlockPlanSessionResponse{
		PlayoutSessionID: epoch.PlayoutSessionID,
		EpochUtcUs:       epoch.EpochUtcUs,
	}, nil
}

func (r *Registry) session(channelID string) (*channelSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[channelID]
	if !ok {
		return nil, fmt.Errorf("control: no session for channel %q", channelID)
	}
	return sess, nil
}

func (r *Registry) feedBlockPlan(channelID string, plan BlockPlanMessage) error {
	sess, err := r.session(channelID)
	if err != nil {
		return err
	}
	p := plan.toPipeline()
	return sess.mgr.FeedBlockPlan(&p)
}

func (r *Registry) attachSink(channelID, sinkID string) error {
	sess, err := r.session(channelID)
	if err != nil {
		return err
	}
	if r.sinkFactory == nil {
		return fmt.Errorf("control: no sink factory configured")
	}
	sink, err := r.sinkFactory(channelID, sinkID)
	if err != nil {
		return fmt.Errorf("control: sink factory: %w", err)
	}
	sess.mx.AttachSink(sinkID, sink)
	return nil
}

func (r *Registry) detachSink(channelID, sinkID string) error {
	sess, err := r.session(channelID)
	if err != nil {
		return err
	}
	sess.mx.DetachSink(sinkID)
	return nil
}

func (r *Registry) forwardCue(req ForwardCueRequest) error {
	sess, err := r.session(req.ChannelID)
	if err != nil {
		return err
	}
	payload := scte.Encode(scte.CueMessage{
		SpliceCommandType: scte.SpliceCommandType(req.SpliceCommandType),
		PtsAdjustment:     req.PtsAdjustment,
	})
	if !sess.mgr.ForwardCue(payload) {
		return fmt.Errorf("control: cue queue full for channel %q", req.ChannelID)
	}
	return nil
}

func (r *Registry) stopChannel(channelID string) error {
	r.mu.Lock()
	sess, ok := r.sessions[channelID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("control: no session for channel %q", channelID)
	}
	delete(r.sessions, channelID)
	onStop := r.onSessionStop
	r.mu.Unlock()

	sess.mgr.StopChannel()
	sess.cancel()
	r.evidenceHub.Emitter(channelID).EmitChannelTerminated("stop_requested")
	if onStop != nil {
		onStop(channelID)
	}
	return nil
}
