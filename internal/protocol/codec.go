// Package protocol implements the MultiChat hub wire protocol: JSON
// text frames, one object per frame, discriminated by an "action"
// field. Only the four message kinds spoken by the hub are modeled.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Action discriminator values.
const (
	ActionRegister          = "register"
	ActionRegisterAck       = "register-ack"
	ActionClientMessage     = "client-message"
	ActionForwardingMessage = "forwarding-message"
)

// Message is a decoded relay frame. Concrete types are Register,
// RegisterAck, ClientMessage and ForwardingMessage.
type Message interface {
	Action() string
}

// Register is the client->hub handshake carrying the client display
// name and the shared secret.
type Register struct {
	ClientName string
	SecretKey  string
}

func (Register) Action() string { return ActionRegister }

// RegisterAck is the hub's acceptance of a Register. It carries no
// payload fields.
type RegisterAck struct{}

func (RegisterAck) Action() string { return ActionRegisterAck }

// ClientMessage is a client->hub chat payload.
type ClientMessage struct {
	Content string
}

func (ClientMessage) Action() string { return ActionClientMessage }

// ForwardingMessage is a hub->client chat payload relayed from
// another client.
type ForwardingMessage struct {
	SourceClientName string
	Content          string
}

func (ForwardingMessage) Action() string { return ActionForwardingMessage }

// ProtocolError reports a frame that could not be decoded. The frame
// is discarded by the caller; it never affects connection state.
type ProtocolError struct {
	Reason string
	Frame  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

// frame is the wire shape of every message kind. Pointer fields
// distinguish an absent mandatory field from an empty one, and make
// json surface wrong-type errors for us.
type frame struct {
	Action           *string `json:"action"`
	ClientName       *string `json:"client-name,omitempty"`
	SecretKey        *string `json:"secret-key,omitempty"`
	SourceClientName *string `json:"source-client-name,omitempty"`
	Content          *string `json:"content,omitempty"`
}

// Encode serializes a Message to a single-line JSON frame.
func Encode(m Message) ([]byte, error) {
	action := m.Action()
	f := frame{Action: &action}

	switch v := m.(type) {
	case Register:
		f.ClientName = &v.ClientName
		f.SecretKey = &v.SecretKey
	case RegisterAck:
	case ClientMessage:
		f.Content = &v.Content
	case ForwardingMessage:
		f.SourceClientName = &v.SourceClientName
		f.Content = &v.Content
	default:
		return nil, fmt.Errorf("unsupported message type %T", m)
	}

	return json.Marshal(f)
}

// Decode parses a received text frame into a Message. It is total:
// any input yields either a Message or a *ProtocolError. Unknown
// fields are ignored for forward compatibility; a missing or wrongly
// typed mandatory field fails the decode.
func Decode(data []byte) (Message, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("invalid frame: %v", err), Frame: string(data)}
	}

	if f.Action == nil {
		return nil, &ProtocolError{Reason: "missing action field", Frame: string(data)}
	}

	switch *f.Action {
	case ActionRegister:
		if f.ClientName == nil || f.SecretKey == nil {
			return nil, &ProtocolError{Reason: "register frame missing client-name or secret-key", Frame: string(data)}
		}
		return Register{ClientName: *f.ClientName, SecretKey: *f.SecretKey}, nil

	case ActionRegisterAck:
		return RegisterAck{}, nil

	case ActionClientMessage:
		if f.Content == nil {
			return nil, &ProtocolError{Reason: "client-message frame missing content", Frame: string(data)}
		}
		return ClientMessage{Content: *f.Content}, nil

	case ActionForwardingMessage:
		if f.SourceClientName == nil || f.Content == nil {
			return nil, &ProtocolError{Reason: "forwarding-message frame missing source-client-name or content", Frame: string(data)}
		}
		return ForwardingMessage{SourceClientName: *f.SourceClientName, Content: *f.Content}, nil

	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown action %q", *f.Action), Frame: string(data)}
	}
}
