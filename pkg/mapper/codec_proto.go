package mapper

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// ProtoCodec is an alternate Codec for callers that want a compact,
// schema-evolvable wire format instead of the default JSON. Every value
// passed to Encode, and every destination passed to Decode, must implement
// proto.Message.
type ProtoCodec struct{}

func (ProtoCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("mapper: proto codec requires a proto.Message, got %T", v)
	}
	return proto.Marshal(msg)
}

func (ProtoCodec) Decode(data []byte, out any) error {
	msg, ok := out.(proto.Message)
	if !ok {
		return fmt.Errorf("mapper: proto codec requires a proto.Message destination, got %T", out)
	}
	return proto.Unmarshal(data, msg)
}

var _ Codec = ProtoCodec{}
