package envelope

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/dispatchflow/internal/runtime/jsoncodec"
)

// Watermill metadata keys used when an envelope travels as a message.
const (
	MessageNameKey      = "name"
	MessageCausationKey = "causation"
)

// ToMessage converts an envelope into a Watermill message. The message UUID is
// the envelope id, the name and causation travel as message metadata and the
// payload becomes the message body.
func ToMessage(env *Envelope) (*message.Message, error) {
	if env == nil {
		return nil, fmt.Errorf("envelope: nil envelope")
	}
	md := env.Metadata()
	msg := message.NewMessage(md.ID(), env.Payload().Bytes())
	for k, v := range md.properties {
		msg.Metadata.Set(k, v)
	}
	msg.Metadata.Set(MessageNameKey, md.Name())
	if md.HasCausation() {
		causation, err := jsoncodec.MarshalToString(md.causation)
		if err != nil {
			return nil, err
		}
		msg.Metadata.Set(MessageCausationKey, causation)
	}
	return msg, nil
}

// FromMessage converts a Watermill message into an envelope. Messages carrying
// a name in their metadata use the message UUID and body directly; otherwise
// the body is parsed as the envelope wire form.
func FromMessage(msg *message.Message) (*Envelope, error) {
	if msg == nil {
		return nil, fmt.Errorf("envelope: nil message")
	}
	name := msg.Metadata.Get(MessageNameKey)
	if name == "" {
		return FromJSON(msg.Payload)
	}

	md := NewMetadata(msg.UUID, name)
	props := make(Properties, len(msg.Metadata))
	for k, v := range msg.Metadata {
		if k == MessageNameKey || k == MessageCausationKey {
			continue
		}
		props[k] = v
	}
	md = md.WithProperties(props)

	if raw, ok := msg.Metadata[MessageCausationKey]; ok {
		var causation []string
		if err := jsoncodec.Unmarshal([]byte(raw), &causation); err != nil {
			return nil, fmt.Errorf("envelope: decode message causation: %w", err)
		}
		if causation == nil {
			causation = []string{}
		}
		md = md.WithCausation(causation)
	}

	payload, err := PayloadFromJSON(msg.Payload)
	if err != nil {
		return nil, err
	}
	return New(md, payload), nil
}
