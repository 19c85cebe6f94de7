package call

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/insurly/go-insurly/internal/log"
	"github.com/insurly/go-insurly/pkg/flow"
	"github.com/insurly/go-insurly/pkg/realtime"
	"github.com/insurly/go-insurly/pkg/transcript"
)

// Greeting is spoken once when a call connects.
const Greeting = "Hello there! I am your AI assistant for auto insurance claims. Let's get started!"

// Instructions steer the realtime session. The scripted prompts drive the
// conversation; these keep the voice of the confirmations consistent.
const Instructions = `You are a helpful and friendly AI assistant specialized in gathering information for auto insurance claims.
You follow a decision tree approach to collect essential claim information.
For recognized user input, you should store or parse the user's answers in a stateful conversation.
Always confirm the user's statements politely and then ask the next required question.`

// Config holds the per-hub settings shared by all calls.
type Config struct {
	OpenAIKey    string
	Model        string  // defaults to realtime.DefaultModel
	Voice        string  // defaults to realtime.DefaultVoice
	Instructions string  // defaults to Instructions
	Temperature  float64 // defaults to 0.8
	Greeting     string  // defaults to Greeting
	RealtimeURL  string  // defaults to realtime.DefaultURL
}

func (c Config) withDefaults() Config {
	if c.Instructions == "" {
		c.Instructions = Instructions
	}
	if c.Greeting == "" {
		c.Greeting = Greeting
	}
	if c.Temperature == 0 {
		c.Temperature = 0.8
	}
	return c
}

// Hub accepts Twilio media-stream connections and manages the set of
// active calls, keyed by streamSid.
type Hub struct {
	cfg         Config
	transcripts *transcript.Writer
	script      *flow.Script

	mu    sync.RWMutex
	calls map[string]*Session

	// Stats
	callsHandled   atomic.Uint64
	framesInbound  atomic.Uint64
	framesOutbound atomic.Uint64
}

// NewHub creates a hub running the claim-intake script.
func NewHub(cfg Config, transcripts *transcript.Writer) *Hub {
	return &Hub{
		cfg:         cfg.withDefaults(),
		transcripts: transcripts,
		script:      flow.ClaimScript(),
		calls:       make(map[string]*Session),
	}
}

// RegisterRoutes registers the media-stream WebSocket endpoint on a Fiber app.
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/media-stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/media-stream", websocket.New(h.handleMediaStream))
}

// handleMediaStream serves one call for the lifetime of its Twilio
// connection. It opens and configures the speech leg, sends the greeting,
// then runs the telephony read loop while the realtime client's own loop
// runs concurrently; whichever ends first tears the call down.
func (h *Hub) handleMediaStream(c *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := realtime.Dial(ctx, realtime.Config{
		APIKey:       h.cfg.OpenAIKey,
		Model:        h.cfg.Model,
		Voice:        h.cfg.Voice,
		Instructions: h.cfg.Instructions,
		Temperature:  h.cfg.Temperature,
		URL:          h.cfg.RealtimeURL,
	})
	if err != nil {
		// Fatal to this call only: it never reaches Active.
		log.Error("call: realtime dial failed", "error", err)
		return
	}

	sess := newSession(h, newTwilioConn(c), client, h.transcripts, h.script)
	sess.cancel = cancel
	sess.bindSpeechEvents(client)

	if err := client.ConfigureSession(); err != nil {
		log.Error("call: session configuration failed", "error", err)
		client.Close()
		return
	}
	if err := client.SendAssistantMessage(h.cfg.Greeting); err != nil {
		log.Warn("call: greeting failed", "error", err)
	}

	client.Start()
	h.callsHandled.Add(1)

	// Telephony read loop. Cancellation is cooperative: checked between
	// reads, and teardown closes the conn to unblock a pending read.
	for {
		if ctx.Err() != nil {
			break
		}
		_, data, err := c.ReadMessage()
		if err != nil {
			break
		}
		if sess.HandleTwilioMessage(data) {
			break
		}
	}
	sess.teardown("telephony leg closed")
}

// register adds a call under its stream id.
func (h *Hub) register(streamSid string, s *Session) {
	h.mu.Lock()
	h.calls[streamSid] = s
	count := len(h.calls)
	h.mu.Unlock()
	log.Debug("call: registered", "streamSid", streamSid, "active", count)
}

// unregister removes a call. Safe to call for an unknown id.
func (h *Hub) unregister(streamSid string) {
	h.mu.Lock()
	delete(h.calls, streamSid)
	count := len(h.calls)
	h.mu.Unlock()
	log.Debug("call: unregistered", "streamSid", streamSid, "active", count)
}

func (h *Hub) countInboundFrame()  { h.framesInbound.Add(1) }
func (h *Hub) countOutboundFrame() { h.framesOutbound.Add(1) }

// CallCount returns the number of active calls.
func (h *Hub) CallCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.calls)
}

// Stats contains hub counters.
type Stats struct {
	ActiveCalls    int    `json:"active_calls"`
	CallsHandled   uint64 `json:"calls_handled"`
	FramesInbound  uint64 `json:"frames_inbound"`
	FramesOutbound uint64 `json:"frames_outbound"`
}

// GetStats returns hub counters.
func (h *Hub) GetStats() Stats {
	return Stats{
		ActiveCalls:    h.CallCount(),
		CallsHandled:   h.callsHandled.Load(),
		FramesInbound:  h.framesInbound.Load(),
		FramesOutbound: h.framesOutbound.Load(),
	}
}

// CallInfo describes one active call.
type CallInfo struct {
	StreamSid     string    `json:"stream_sid"`
	Phase         string    `json:"phase"`
	Started       time.Time `json:"started"`
	MarkQueueSize int       `json:"mark_queue_size"`
}

// GetCallInfos returns info about all active calls.
func (h *Hub) GetCallInfos() []CallInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]CallInfo, 0, len(h.calls))
	for _, s := range h.calls {
		infos = append(infos, CallInfo{
			StreamSid:     s.StreamSid(),
			Phase:         s.Phase().String(),
			Started:       s.started,
			MarkQueueSize: s.relay.MarkQueueDepth(),
		})
	}
	return infos
}

// RegisterAPIRoutes registers call inspection routes.
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	calls := api.Group("/calls")

	calls.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"calls": h.GetCallInfos(),
			"count": h.CallCount(),
		})
	})

	calls.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}
