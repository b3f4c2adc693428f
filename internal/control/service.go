package control

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/slbailey/airengine/internal/evidence"
)

// ServiceName is the fully-qualified gRPC service name advertised in
// ServiceDescription and used to build method paths.
const ServiceName = "airengine.control.v1.Control"

// ControlServer is the application-level interface a Control Surface
// implementation satisfies. Server is the concrete implementation.
type ControlServer interface {
	StartBlockPlanSession(ctx context.Context, req *StartBlockPlanSessionRequest) (*StartBlockPlanSessionResponse, error)
	FeedBlockPlan(ctx context.Context, req *FeedBlockPlanRequest) (*Ack, error)
	AttachSink(ctx context.Context, req *AttachSinkRequest) (*Ack, error)
	DetachSink(ctx context.Context, req *DetachSinkRequest) (*Ack, error)
	StopChannel(ctx context.Context, req *StopChannelRequest) (*Ack, error)
	ForwardCue(ctx context.Context, req *ForwardCueRequest) (*Ack, error)
	EvidenceStream(req *EvidenceStreamRequest, stream EvidenceStreamServer) error
}

// EvidenceStreamServer is the server-side handle for the EvidenceStream
// server-streaming RPC.
type EvidenceStreamServer interface {
	Send(*EvidenceEventMessage) error
	grpc.ServerStream
}

type evidenceStreamServer struct {
	grpc.ServerStream
}

func (s *evidenceStreamServer) Send(ev *EvidenceEventMessage) error {
	env, err := encodeEnvelope(ev)
	if err != nil {
		return err
	}
	return s.SendMsg(env)
}

// unaryHandler builds a grpc.MethodDesc.Handler-compatible function for a
// unary RPC whose request/response are JSON-in-wrapperspb.BytesValue
// envelopes. Generics collapse what would otherwise be six near-identical
// decode/dispatch/encode handlers into one, while still producing a
// concrete function value: an unnamed func literal type is assignable to
// grpc's unexported methodHandler type by structural identity.
func unaryHandler[Req any, Resp any](call func(ctx context.Context, srv interface{}, req *Req) (*Resp, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		env := new(wrapperspb.BytesValue)
		if err := dec(env); err != nil {
			return nil, err
		}
		req := new(Req)
		if err := decodeEnvelope(env, req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			resp, err := call(ctx, srv, req)
			if err != nil {
				return nil, err
			}
			return encodeEnvelope(resp)
		}
		info := &grpc.UnaryServerInfo{Server: srv}
		handler := func(ctx context.Context, reqIface interface{}) (interface{}, error) {
			resp, err := call(ctx, srv, reqIface.(*Req))
			if err != nil {
				return nil, err
			}
			return resp, nil
		}
		out, err := interceptor(ctx, req, info, handler)
		if err != nil {
			return nil, err
		}
		return encodeEnvelope(out)
	}
}

func evidenceStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	env := new(wrapperspb.BytesValue)
	if err := stream.RecvMsg(env); err != nil {
		return err
	}
	req := new(EvidenceStreamRequest)
	if err := decodeEnvelope(env, req); err != nil {
		return err
	}
	return srv.(ControlServer).EvidenceStream(req, &evidenceStreamServer{ServerStream: stream})
}

// ServiceDescription is the grpc.ServiceDesc shape protoc-gen-go-grpc
// would generate from a control.proto defining these seven RPCs (six
// unary, one server stream).
var ServiceDescription = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StartBlockPlanSession",
			Handler: unaryHandler(func(ctx context.Context, srv interface{}, req *StartBlockPlanSessionRequest) (*StartBlockPlanSessionResponse, error) {
				return srv.(ControlServer).StartBlockPlanSession(ctx, req)
			}),
		},
		{
			MethodName: "FeedBlockPlan",
			Handler: unaryHandler(func(ctx context.Context, srv interface{}, req *FeedBlockPlanRequest) (*Ack, error) {
				return srv.(ControlServer).FeedBlockPlan(ctx, req)
			}),
		},
		{
			MethodName: "AttachSink",
			Handler: unaryHandler(func(ctx context.Context, srv interface{}, req *AttachSinkRequest) (*Ack, error) {
				return srv.(ControlServer).AttachSink(ctx, req)
			}),
		},
		{
			MethodName: "DetachSink",
			Handler: unaryHandler(func(ctx context.Context, srv interface{}, req *DetachSinkRequest) (*Ack, error) {
				return srv.(ControlServer).DetachSink(ctx, req)
			}),
		},
		{
			MethodName: "StopChannel",
			Handler: unaryHandler(func(ctx context.Context, srv interface{}, req *StopChannelRequest) (*Ack, error) {
				return srv.(ControlServer).StopChannel(ctx, req)
			}),
		},
		{
			MethodName: "ForwardCue",
			Handler: unaryHandler(func(ctx context.Context, srv interface{}, req *ForwardCueRequest) (*Ack, error) {
				return srv.(ControlServer).ForwardCue(ctx, req)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "EvidenceStream",
			Handler:       evidenceStreamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "control.proto",
}

// Server implements ControlServer over a Registry and an evidence.Hub,
// and owns the grpc.Server that advertises ServiceDescription.
type Server struct {
	reg *Registry
	hub *evidence.Hub
	srv *grpc.Server
}

// NewServer constructs a Server. Call Start to bind and serve.
func NewServer(reg *Registry, hub *evidence.Hub) *Server {
	return &Server{reg: reg, hub: hub}
}

func (s *Server) StartBlockPlanSession(ctx context.Context, req *StartBlockPlanSessionRequest) (*StartBlockPlanSessionResponse, error) {
	resp, err := s.reg.startSession(*req)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Server) FeedBlockPlan(ctx context.Context, req *FeedBlockPlanRequest) (*Ack, error) {
	if err := s.reg.feedBlockPlan(req.ChannelID, req.Plan); err != nil {
		return &Ack{Ok: false, Error: err.Error()}, nil
	}
	return &Ack{Ok: true}, nil
}

func (s *Server) AttachSink(ctx context.Context, req *AttachSinkRequest) (*Ack, error) {
	if err := s.reg.attachSink(req.ChannelID, req.SinkID); err != nil {
		return &Ack{Ok: false, Error: err.Error()}, nil
	}
	return &Ack{Ok: true}, nil
}

func (s *Server) DetachSink(ctx context.Context, req *DetachSinkRequest) (*Ack, error) {
	if err := s.reg.detachSink(req.ChannelID, req.SinkID); err != nil {
		return &Ack{Ok: false, Error: err.Error()}, nil
	}
	return &Ack{Ok: true}, nil
}

func (s *Server) StopChannel(ctx context.Context, req *StopChannelRequest) (*Ack, error) {
	if err := s.reg.stopChannel(req.ChannelID); err != nil {
		return &Ack{Ok: false, Error: err.Error()}, nil
	}
	return &Ack{Ok: true}, nil
}

func (s *Server) ForwardCue(ctx context.Context, req *ForwardCueRequest) (*Ack, error) {
	if err := s.reg.forwardCue(*req); err != nil {
		return &Ack{Ok: false, Error: err.Error()}, nil
	}
	return &Ack{Ok: true}, nil
}

func toEvidenceEventMessage(ev evidence.Event) *EvidenceEventMessage {
	return &EvidenceEventMessage{
		Sequence:         ev.Sequence,
		ChannelID:        ev.ChannelID,
		Type:             string(ev.Type),
		BlockID:          ev.BlockID,
		NextBlockID:      ev.NextBlockID,
		SegmentID:        ev.SegmentID,
		Tick:             ev.Tick,
		Status:           ev.Status,
		Reason:           ev.Reason,
		TruncatedByFence: ev.TruncatedByFence,
		EmittedAtUtcUs:   ev.EmittedAtUtcUs,
	}
}

func (s *Server) EvidenceStream(req *EvidenceStreamRequest, stream EvidenceStreamServer) error {
	sub, cancel, err := s.hub.Subscribe(req.ChannelID, req.FromSequence)
	if err != nil {
		return err
	}
	defer cancel()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-sub:
			if err := stream.Send(toEvidenceEventMessage(ev)); err != nil {
				return err
			}
		}
	}
}

// Start binds addr and serves ServiceDescription until Stop is called.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("control: listen %s: %w", addr, err)
	}
	s.srv = grpc.NewServer()
	s.srv.RegisterService(&ServiceDescription, s)
	return s.srv.Serve(lis)
}

// Stop gracefully stops the underlying grpc.Server.
func (s *Server) Stop() {
	if s.srv != nil {
		s.srv.GracefulStop()
	}
}
