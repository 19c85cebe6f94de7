// Package realtime implements a client for the OpenAI Realtime API.
// It speaks the WebSocket event protocol: session configuration, caller
// audio appends, assistant message synthesis, and playback truncation.
package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/insurly/go-insurly/internal/log"
)

const (
	// DefaultURL is the Realtime API WebSocket endpoint.
	DefaultURL = "wss://api.openai.com/v1/realtime"
	// DefaultModel is the realtime model used for calls.
	DefaultModel = "gpt-4o-mini-realtime-preview-2024-12-17"
	// DefaultVoice is the synthesized assistant voice.
	DefaultVoice = "alloy"

	handshakeTimeout = 10 * time.Second
)

// Errors returned by the client.
var (
	ErrMissingAPIKey = fmt.Errorf("realtime: missing API key")
	ErrNotConnected  = fmt.Errorf("realtime: not connected")
)

// Config holds the per-session parameters sent in session.update.
type Config struct {
	APIKey       string
	Model        string  // defaults to DefaultModel
	Voice        string  // defaults to DefaultVoice
	Instructions string  // system instructions for the session
	Temperature  float64 // sampling temperature, 0 means API default
	URL          string  // defaults to DefaultURL, overridable for tests
}

// Client is a connection to one Realtime session. One client serves exactly
// one call; it is never shared.
type Client struct {
	cfg Config

	ws   *websocket.Conn
	wsMu sync.Mutex

	mu     sync.Mutex
	closed bool

	// Callbacks, set before Start. All are invoked from the single read
	// loop goroutine, in event arrival order.
	onAudioDelta       func(itemID, delta string)
	onConversationItem func(role, text string)
	onSpeechStarted    func()
	onClosed           func(err error)
}

// Dial connects to the Realtime API for a new session.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}

	url := fmt.Sprintf("%s?model=%s", cfg.URL, cfg.Model)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("realtime: failed to connect: %w", err)
	}

	return &Client{cfg: cfg, ws: ws}, nil
}

// OnAudioDelta sets the callback for assistant audio chunks. itemID is the
// conversation item the chunk belongs to, empty if the event omitted it.
func (c *Client) OnAudioDelta(fn func(itemID, delta string)) {
	c.onAudioDelta = fn
}

// OnConversationItem sets the callback for created conversation items with
// role user or assistant.
func (c *Client) OnConversationItem(fn func(role, text string)) {
	c.onConversationItem = fn
}

// OnSpeechStarted sets the callback for the server VAD speech-start signal.
func (c *Client) OnSpeechStarted(fn func()) {
	c.onSpeechStarted = fn
}

// OnClosed sets the callback invoked once when the read loop ends.
// err is nil for a clean peer close.
func (c *Client) OnClosed(fn func(err error)) {
	c.onClosed = fn
}

// ConfigureSession sends the fixed session parameters: G.711 mu-law audio
// both ways to match the telephony leg, server VAD, voice and instructions.
func (c *Client) ConfigureSession() error {
	session := map[string]any{
		"turn_detection":      map[string]any{"type": "server_vad"},
		"input_audio_format":  "g711_ulaw",
		"output_audio_format": "g711_ulaw",
		"voice":               c.cfg.Voice,
		"instructions":        c.cfg.Instructions,
		"modalities":          []string{"text", "audio"},
	}
	if c.cfg.Temperature != 0 {
		session["temperature"] = c.cfg.Temperature
	}
	return c.sendEvent(map[string]any{
		"type":    "session.update",
		"session": session,
	})
}

// SendAssistantMessage enqueues literal assistant text and requests audio
// generation for it: a conversation.item.create followed by response.create.
func (c *Client) SendAssistantMessage(text string) error {
	item := map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "message",
			"role":    "assistant",
			"content": []map[string]any{{"type": "input_text", "text": text}},
		},
	}
	if err := c.sendEvent(item); err != nil {
		return err
	}
	return c.sendEvent(map[string]any{"type": "response.create"})
}

// AppendAudio forwards one base64 caller audio frame into the input buffer.
// The payload is passed through opaquely; no decoding happens here.
func (c *Client) AppendAudio(payload string) error {
	return c.sendEvent(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": payload,
	})
}

// TruncateItem cuts an assistant item's audio at audioEndMs, discarding the
// unplayed remainder server-side.
func (c *Client) TruncateItem(itemID string, audioEndMs int64) error {
	return c.sendEvent(map[string]any{
		"type":          "conversation.item.truncate",
		"item_id":       itemID,
		"content_index": 0,
		"audio_end_ms":  audioEndMs,
	})
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.ws != nil {
		return c.ws.Close()
	}
	return nil
}

// isClosed reports whether Close has been called.
func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Start launches the read loop. Events are dispatched to the callbacks in
// arrival order from a single goroutine.
func (c *Client) Start() {
	go c.handleMessages()
}

// handleMessages reads server events until the connection ends.
func (c *Client) handleMessages() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.isClosed() {
				err = nil
			}
			if c.onClosed != nil {
				c.onClosed(err)
			}
			return
		}
		c.handleEvent(data)
	}
}

// sendEvent marshals and writes one client event, tagging it with a unique
// event_id so server-side errors can be correlated back to their cause.
func (c *Client) sendEvent(event map[string]any) error {
	if _, ok := event["event_id"]; !ok {
		event["event_id"] = "evt_" + uuid.NewString()
	}

	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if c.ws == nil {
		return ErrNotConnected
	}
	return c.ws.WriteJSON(event)
}

// logOnly is the fixed allow-list of event types logged for observability.
var logOnly = map[string]bool{
	"error":                             true,
	"response.content.done":             true,
	"rate_limits.updated":               true,
	"response.done":                     true,
	"input_audio_buffer.committed":      true,
	"input_audio_buffer.speech_stopped": true,
	"session.created":                   true,
}

// handleEvent dispatches one raw server event. Malformed JSON is logged and
// skipped; unknown event types are ignored.
func (c *Client) handleEvent(data []byte) {
	ev, err := parseServerEvent(data)
	if err != nil {
		log.Warn("realtime: skipping malformed event", "error", err)
		return
	}

	switch ev.Type {
	case "response.audio.delta":
		if ev.Delta != "" && c.onAudioDelta != nil {
			c.onAudioDelta(ev.ItemID, ev.Delta)
		}

	case "conversation.item.create":
		if ev.Item == nil {
			return
		}
		role := ev.Item.Role
		if role != "user" && role != "assistant" {
			return
		}
		if c.onConversationItem != nil {
			c.onConversationItem(role, ev.Item.Text())
		}

	case "input_audio_buffer.speech_started":
		if c.onSpeechStarted != nil {
			c.onSpeechStarted()
		}

	default:
		if logOnly[ev.Type] {
			log.Debug("realtime: event", "type", ev.Type)
		}
	}
}
