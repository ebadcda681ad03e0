package wire

import (
	"encoding/json"
	"fmt"
)

// DecodeError is an error that maps to an error frame the receiver can send
// back to the peer without dropping the connection.
type DecodeError interface {
	error
	// Code returns the machine-readable error code for the reply frame.
	Code() string
}

// InvalidJSONError reports a frame that is not valid JSON.
type InvalidJSONError struct {
	Err error
}

func (e *InvalidJSONError) Error() string {
	return fmt.Sprintf("wire: invalid json: %v", e.Err)
}

func (e *InvalidJSONError) Unwrap() error { return e.Err }

// Code implements DecodeError.
func (e *InvalidJSONError) Code() string { return "invalid_json" }

// UnknownTypeError reports a frame whose type discriminator is missing or
// not one of the known frame types.
type UnknownTypeError struct {
	Type Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("wire: unknown message type %q", e.Type)
}

// Code implements DecodeError.
func (e *UnknownTypeError) Code() string {
	return fmt.Sprintf("unknown_message_type: %s", e.Type)
}

// Encode serializes a message to its UTF-8 JSON wire form, filling in the
// type discriminator from the message kind.
func Encode(m Message) ([]byte, error) {
	stamp(m)
	return json.Marshal(m)
}

// stamp writes the discriminator into the struct's Type field so callers
// never have to set it by hand.
func stamp(m Message) {
	switch v := m.(type) {
	case *Handshake:
		v.Type = TypeHandshake
	case *HandshakeAck:
		v.Type = TypeHandshakeAck
	case *Ping:
		v.Type = TypePing
	case *Pong:
		v.Type = TypePong
	case *Control:
		v.Type = TypeControl
	case *ControlAck:
		v.Type = TypeControlAck
	case *AudioChunk:
		v.Type = TypeAudioChunk
	case *Status:
		v.Type = TypeStatus
	case *TextResponse:
		v.Type = TypeTextResponse
	case *AudioResponse:
		v.Type = TypeAudioResponse
	case *ConfigUpdate:
		v.Type = TypeConfigUpdate
	case *ToyState:
		v.Type = TypeToyState
	case *Error:
		v.Type = TypeError
	}
}

// Decode parses a wire frame into its concrete message type.
//
// Malformed JSON yields *InvalidJSONError and an unrecognized (or absent)
// discriminator yields *UnknownTypeError. Both satisfy DecodeError so the
// session can answer with an error frame and keep the connection.
func Decode(data []byte) (Message, error) {
	var envelope struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, &InvalidJSONError{Err: err}
	}

	var m Message
	switch envelope.Type {
	case TypeHandshake:
		m = &Handshake{}
	case TypeHandshakeAck:
		m = &HandshakeAck{}
	case TypePing:
		m = &Ping{}
	case TypePong:
		m = &Pong{}
	case TypeControl:
		m = &Control{}
	case TypeControlAck:
		m = &ControlAck{}
	case TypeAudioChunk:
		m = &AudioChunk{}
	case TypeStatus:
		m = &Status{}
	case TypeTextResponse:
		m = &TextResponse{}
	case TypeAudioResponse:
		m = &AudioResponse{}
	case TypeConfigUpdate:
		m = &ConfigUpdate{}
	case TypeToyState:
		m = &ToyState{}
	case TypeError:
		m = &Error{}
	default:
		return nil, &UnknownTypeError{Type: envelope.Type}
	}

	if err := json.Unmarshal(data, m); err != nil {
		return nil, &InvalidJSONError{Err: err}
	}
	return m, nil
}
