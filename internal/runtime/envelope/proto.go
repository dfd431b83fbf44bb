package envelope

import (
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var protoMarshal = protojson.MarshalOptions{UseProtoNames: true}

// PayloadFromProto encodes a protobuf message with protojson.
func PayloadFromProto(msg proto.Message) (Payload, error) {
	if msg == nil {
		return NullPayload(), nil
	}
	data, err := protoMarshal.Marshal(msg)
	if err != nil {
		return Payload{}, err
	}
	return PayloadFromJSON(data)
}

// DecodeProto unmarshals the payload into msg, ignoring unknown fields.
func (p Payload) DecodeProto(msg proto.Message) error {
	return protojson.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(p.Bytes(), msg)
}

// Struct returns the payload as a structpb.Struct. Null yields nil.
func (p Payload) Struct() (*structpb.Struct, error) {
	obj, err := p.Object()
	if err != nil || obj == nil {
		return nil, err
	}
	return structpb.NewStruct(obj)
}
