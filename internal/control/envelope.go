package control

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

// encodeEnvelope marshals v as JSON and wraps it in a wrapperspb.BytesValue,
// a real pre-compiled protobuf message. Every request and response on the
// wire is carried this way: hand-authoring protoreflect descriptor wiring
// for bespoke message types cannot be verified without a working protoc
// toolchain, while wrapperspb is stable and genuinely exercises both
// google.golang.org/grpc and google.golang.org/protobuf.
func encodeEnvelope(v interface{}) (*wrapperspb.BytesValue, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("control: encode envelope: %w", err)
	}
	return wrapperspb.Bytes(body), nil
}

// decodeEnvelope unwraps a wrapperspb.BytesValue and JSON-unmarshals its
// payload into v.
func decodeEnvelope(env *wrapperspb.BytesValue, v interface{}) error {
	if env == nil {
		return fmt.Errorf("control: decode envelope: nil envelope")
	}
	if err := json.Unmarshal(env.GetValue(), v); err != nil {
		return fmt.Errorf("control: decode envelope: %w", err)
	}
	return nil
}
