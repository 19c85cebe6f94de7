// Package twilio defines the Twilio Media Streams WebSocket message types.
// Twilio delivers G.711 mu-law call audio as JSON frames over a WebSocket
// and accepts media, mark and clear frames in return.
package twilio

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the type of a Media Streams message
type EventType string

const (
	// Twilio -> Service events
	EventConnected EventType = "connected" // WebSocket handshake complete
	EventStart     EventType = "start"     // Stream metadata, carries streamSid
	EventMedia     EventType = "media"     // Caller audio frame
	EventMark      EventType = "mark"      // Acknowledgment of a mark we sent
	EventStop      EventType = "stop"      // Stream ended

	// Service -> Twilio events
	EventClear EventType = "clear" // Discard buffered outbound audio
)

// MarkResponsePart is the mark name attached to every outbound audio chunk
// so Twilio acknowledges playback progress chunk by chunk.
const MarkResponsePart = "responsePart"

// Message is the wrapper for all Media Streams messages
type Message struct {
	Event     EventType  `json:"event"`
	StreamSid string     `json:"streamSid,omitempty"`
	Start     *StartData `json:"start,omitempty"`
	Media     *MediaData `json:"media,omitempty"`
	Mark      *MarkData  `json:"mark,omitempty"`
}

// StartData carries stream metadata from the start event
type StartData struct {
	StreamSid  string `json:"streamSid"`
	AccountSid string `json:"accountSid,omitempty"`
	CallSid    string `json:"callSid,omitempty"`
}

// MediaData carries one audio frame
type MediaData struct {
	Payload   string `json:"payload"`             // base64 G.711 mu-law
	Timestamp int64  `json:"timestamp,omitempty"` // ms since stream start, inbound only
}

// MarkData names a playback synchronization marker
type MarkData struct {
	Name string `json:"name"`
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("twilio: failed to parse message: %w", err)
	}
	return &msg, nil
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// NewMediaMessage builds an outbound audio frame for the given stream
func NewMediaMessage(streamSid, payload string) *Message {
	return &Message{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media:     &MediaData{Payload: payload},
	}
}

// NewMarkMessage builds an outbound mark for the given stream
func NewMarkMessage(streamSid, name string) *Message {
	return &Message{
		Event:     EventMark,
		StreamSid: streamSid,
		Mark:      &MarkData{Name: name},
	}
}

// NewClearMessage builds a buffer-clear instruction for the given stream
func NewClearMessage(streamSid string) *Message {
	return &Message{
		Event:     EventClear,
		StreamSid: streamSid,
	}
}
