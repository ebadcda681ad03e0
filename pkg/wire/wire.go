// Package wire defines the JSON frame protocol spoken between toy devices
// and the gateway.
//
// Every frame is a self-delimited JSON object with a required "type"
// discriminator. Binary audio travels as lowercase hex in a "data" field
// with a sibling "metadata" object. Hex doubles the payload size but the
// audio chunks are small and the symmetry with the device firmware is worth
// it; switching to base64 would have to happen on both ends at once.
package wire

import (
	"github.com/pommai/toygate/pkg/jsontime"
)

// Type is the frame discriminator.
type Type string

// Frame types. Direction is noted as C→S (device to gateway) or S→C.
const (
	TypeHandshake     Type = "handshake"      // C→S, first frame after accept
	TypeHandshakeAck  Type = "handshake_ack"  // S→C
	TypePing          Type = "ping"           // either
	TypePong          Type = "pong"           // either
	TypeControl       Type = "control"        // C→S
	TypeControlAck    Type = "control_ack"    // S→C
	TypeAudioChunk    Type = "audio_chunk"    // C→S, streamed input
	TypeStatus        Type = "status"         // S→C, periodic during AI call
	TypeTextResponse  Type = "text_response"  // S→C, playback trigger
	TypeAudioResponse Type = "audio_response" // S→C, streamed TTS chunk
	TypeConfigUpdate  Type = "config_update"  // S→C
	TypeToyState      Type = "toy_state"      // S→C, advisory
	TypeError         Type = "error"          // either
)

// Control commands.
const (
	CommandStartStreaming = "start_streaming"
	CommandStopStreaming  = "stop_streaming"
)

// Audio format tags carried in frame metadata.
const (
	FormatPCM16 = "pcm16"
	FormatWAV   = "wav"
	FormatOpus  = "opus"
)

// Message is a decoded wire frame.
type Message interface {
	// FrameType returns the frame discriminator.
	FrameType() Type
}

// Handshake is the first frame a device sends after connecting.
type Handshake struct {
	Type         Type          `json:"type"`
	DeviceID     string        `json:"deviceId"`
	ToyID        string        `json:"toyId"`
	Capabilities Capabilities  `json:"capabilities"`
	Timestamp    jsontime.Unix `json:"timestamp,omitzero"`
}

// Capabilities advertises what the device supports.
type Capabilities struct {
	Audio       bool `json:"audio"`
	WakeWord    bool `json:"wakeWord"`
	OfflineMode bool `json:"offlineMode"`
	Opus        bool `json:"opus"`
	SampleRate  int  `json:"sampleRate"`
}

// HandshakeAck confirms the accept and carries the gateway-assigned session id.
type HandshakeAck struct {
	Type      Type          `json:"type"`
	Status    string        `json:"status"`
	SessionID string        `json:"session_id"`
	Timestamp jsontime.Unix `json:"timestamp,omitzero"`
}

// Ping is an application-level liveness probe.
type Ping struct {
	Type      Type          `json:"type"`
	Timestamp jsontime.Unix `json:"timestamp,omitzero"`
}

// Pong is the reply to a Ping.
type Pong struct {
	Type      Type          `json:"type"`
	Timestamp jsontime.Unix `json:"timestamp,omitzero"`
}

// Control carries an advisory streaming command.
type Control struct {
	Type      Type          `json:"type"`
	Command   string        `json:"command"`
	Timestamp jsontime.Unix `json:"timestamp,omitzero"`
}

// ControlAck acknowledges a Control frame.
type ControlAck struct {
	Type    Type   `json:"type"`
	Command string `json:"command"`
	OK      bool   `json:"ok"`
}

// AudioChunk is a streamed input frame. A chunk with empty Data and
// Metadata.IsFinal set is a pure terminal marker ending the utterance.
type AudioChunk struct {
	Type    Type         `json:"type"`
	Payload AudioPayload `json:"payload"`
}

// AudioPayload carries hex-encoded audio bytes plus format metadata.
type AudioPayload struct {
	Data     HexBytes      `json:"data"`
	Metadata AudioMetadata `json:"metadata"`
}

// AudioMetadata describes the bytes in an AudioPayload.
type AudioMetadata struct {
	IsFinal    bool          `json:"isFinal"`
	Format     string        `json:"format,omitempty"`
	SampleRate int           `json:"sampleRate,omitempty"`
	Channels   int           `json:"channels,omitempty"`
	Endian     string        `json:"endian,omitempty"`
	Provider   string        `json:"provider,omitempty"`
	Duration   float64       `json:"duration,omitempty"`
	Timestamp  jsontime.Unix `json:"timestamp,omitzero"`
}

// Status is sent periodically while an AI call is outstanding.
type Status struct {
	Type    Type   `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// TextResponse carries the AI reply text. Receipt of this frame is the
// device's playback trigger, so the gateway always sends it before the
// first AudioResponse of the same utterance.
type TextResponse struct {
	Type    Type        `json:"type"`
	Payload TextPayload `json:"payload"`
}

// TextPayload is the body of a TextResponse.
type TextPayload struct {
	Text      string        `json:"text"`
	Timestamp jsontime.Unix `json:"timestamp,omitzero"`
}

// AudioResponse is a streamed TTS chunk. An empty Data with IsFinal set
// terminates the stream.
type AudioResponse struct {
	Type    Type         `json:"type"`
	Payload AudioPayload `json:"payload"`
}

// ConfigUpdate pushes a runtime configuration change to the device.
type ConfigUpdate struct {
	Type   Type              `json:"type"`
	Config map[string]string `json:"config"`
}

// ToyState is an advisory state notification.
type ToyState struct {
	Type  Type   `json:"type"`
	State string `json:"state"`
}

// Error reports a recoverable error. Code is a short machine-readable
// string; Message is optional human text.
type Error struct {
	Type    Type   `json:"type"`
	Code    string `json:"error"`
	Message string `json:"message,omitempty"`
}

// FrameType implements Message.
func (m *Handshake) FrameType() Type     { return TypeHandshake }
func (m *HandshakeAck) FrameType() Type  { return TypeHandshakeAck }
func (m *Ping) FrameType() Type          { return TypePing }
func (m *Pong) FrameType() Type          { return TypePong }
func (m *Control) FrameType() Type       { return TypeControl }
func (m *ControlAck) FrameType() Type    { return TypeControlAck }
func (m *AudioChunk) FrameType() Type    { return TypeAudioChunk }
func (m *Status) FrameType() Type        { return TypeStatus }
func (m *TextResponse) FrameType() Type  { return TypeTextResponse }
func (m *AudioResponse) FrameType() Type { return TypeAudioResponse }
func (m *ConfigUpdate) FrameType() Type  { return TypeConfigUpdate }
func (m *ToyState) FrameType() Type      { return TypeToyState }
func (m *Error) FrameType() Type         { return TypeError }

// IsTerminal reports whether the payload is a pure terminal marker.
func (p *AudioPayload) IsTerminal() bool {
	return len(p.Data) == 0 && p.Metadata.IsFinal
}
