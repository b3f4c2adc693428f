package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is a thin ControlServer caller over a grpc.ClientConn, used for
// round-trip tests and any external scheduler process that talks to the
// Control Surface directly rather than embedding a Registry.
type Client struct {
	cc *grpc.ClientConn
}

// NewClient wraps an already-dialed connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

func methodPath(name string) string {
	return "/" + ServiceName + "/" + name
}

func (c *Client) call(ctx context.Context, method string, req, resp interface{}) error {
	env, err := encodeEnvelope(req)
	if err != nil {
		return err
	}
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodPath(method), env, out); err != nil {
		return err
	}
	return decodeEnvelope(out, resp)
}

func (c *Client) StartBlockPlanSession(ctx context.Context, req *StartBlockPlanSessionRequest) (*StartBlockPlanSessionResponse, error) {
	resp := new(StartBlockPlanSessionResponse)
	if err := c.call(ctx, "StartBlockPlanSession", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) FeedBlockPlan(ctx context.Context, req *FeedBlockPlanRequest) (*Ack, error) {
	resp := new(Ack)
	if err := c.call(ctx, "FeedBlockPlan", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) AttachSink(ctx context.Context, req *AttachSinkRequest) (*Ack, error) {
	resp := new(Ack)
	if err := c.call(ctx, "AttachSink", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) DetachSink(ctx context.Context, req *DetachSinkRequest) (*Ack, error) {
	resp := new(Ack)
	if err := c.call(ctx, "DetachSink", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) StopChannel(ctx context.Context, req *StopChannelRequest) (*Ack, error) {
	resp := new(Ack)
	if err := c.call(ctx, "StopChannel", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ForwardCue(ctx context.Context, req *ForwardCueRequest) (*Ack, error) {
	resp := new(Ack)
	if err := c.call(ctx, "ForwardCue", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// EvidenceStream opens the server-streaming RPC and returns a channel fed
// by a background goroutine that loops RecvMsg until the stream ends.
func (c *Client) EvidenceStream(ctx context.Context, req *EvidenceStreamRequest) (<-chan *EvidenceEventMessage, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDescription.Streams[0], methodPath("EvidenceStream"))
	if err != nil {
		return nil, err
	}
	env, err := encodeEnvelope(req)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(env); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	out := make(chan *EvidenceEventMessage, 64)
	go func() {
		defer close(out)
		for {
			respEnv := new(wrapperspb.BytesValue)
			if err := stream.RecvMsg(respEnv); err != nil {
				return
			}
			ev := new(EvidenceEventMessage)
			if decodeEnvelope(respEnv, ev) != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
