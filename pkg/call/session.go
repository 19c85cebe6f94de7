package call

import (
	"context"
	"sync"
	"time"

	"github.com/insurly/go-insurly/internal/log"
	"github.com/insurly/go-insurly/pkg/flow"
	"github.com/insurly/go-insurly/pkg/realtime"
	"github.com/insurly/go-insurly/pkg/transcript"
	"github.com/insurly/go-insurly/pkg/twilio"
)

// Phase is a call's lifecycle state. Transitions only move forward:
// Connecting -> Active -> Closing -> Closed.
type Phase int

const (
	// PhaseConnecting means the speech leg is being established.
	PhaseConnecting Phase = iota
	// PhaseActive means both read loops are running.
	PhaseActive
	// PhaseClosing means one leg ended and teardown is in progress.
	PhaseClosing
	// PhaseClosed means all resources are released.
	PhaseClosed
)

// String returns the phase name for logging.
func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseActive:
		return "active"
	case PhaseClosing:
		return "closing"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

// Session owns one call: its conversation state, audio relay and both leg
// connections, from connect to teardown. Nothing in a session is shared
// across calls.
type Session struct {
	hub         *Hub
	tel         telephonyConn
	speech      speechConn
	relay       *Relay
	engine      *flow.Engine
	transcripts *transcript.Writer

	mu        sync.Mutex
	streamSid string
	phase     Phase
	state     *flow.State
	started   time.Time

	cancel       context.CancelFunc
	teardownOnce sync.Once
}

// newSession wires a session between the two legs. The conversation state
// itself is created when Twilio's start event arrives.
func newSession(hub *Hub, tel telephonyConn, speech speechConn, transcripts *transcript.Writer, script *flow.Script) *Session {
	return &Session{
		hub:         hub,
		tel:         tel,
		speech:      speech,
		relay:       NewRelay(tel, speech),
		engine:      flow.NewEngine(script),
		transcripts: transcripts,
		phase:       PhaseConnecting,
		started:     time.Now(),
	}
}

// StreamSid returns the Twilio stream id, empty until the start event.
func (s *Session) StreamSid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSid
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// HandleTwilioMessage routes one raw frame from the telephony leg.
// Returns true when the read loop should stop. Malformed frames are logged
// and skipped; unknown events are ignored.
func (s *Session) HandleTwilioMessage(data []byte) (stop bool) {
	msg, err := twilio.ParseMessage(data)
	if err != nil {
		log.Warn("call: skipping malformed twilio frame", "error", err)
		return false
	}

	switch msg.Event {
	case twilio.EventStart:
		if msg.Start == nil {
			return false
		}
		s.handleStart(msg.Start.StreamSid)

	case twilio.EventMedia:
		if msg.Media == nil {
			return false
		}
		s.hub.countInboundFrame()
		if err := s.relay.ForwardInbound(msg.Media.Timestamp, msg.Media.Payload); err != nil {
			log.Debug("call: inbound forward failed", "streamSid", s.StreamSid(), "error", err)
		}

	case twilio.EventMark:
		s.relay.OnMarkAcknowledged()

	case twilio.EventStop:
		s.teardown("stop")
		return true
	}
	return false
}

// handleStart creates the conversation state and registers the call.
func (s *Session) handleStart(sid string) {
	s.mu.Lock()
	s.streamSid = sid
	s.state = flow.NewState()
	if s.phase == PhaseConnecting {
		s.phase = PhaseActive
	}
	s.mu.Unlock()

	s.tel.SetStreamSid(sid)
	s.hub.register(sid, s)
	s.transcripts.CallStarted(sid)
	log.Info("call: stream started", "streamSid", sid)
}

// bindSpeechEvents wires the realtime client's callbacks to this session.
// All handlers run on the client's single read-loop goroutine, so the
// relay's speech-side fields have exactly one writer.
func (s *Session) bindSpeechEvents(client *realtime.Client) {
	client.OnAudioDelta(func(itemID, delta string) {
		if itemID != "" {
			s.relay.OnAssistantUtteranceStarted(itemID)
		}
		s.hub.countOutboundFrame()
		if err := s.relay.OnAssistantAudioDelta(delta); err != nil {
			log.Debug("call: outbound forward failed", "streamSid", s.StreamSid(), "error", err)
		}
	})

	client.OnConversationItem(func(role, text string) {
		s.transcripts.Line(role, text)
		if role == "user" {
			s.handleUserText(text)
		}
	})

	client.OnSpeechStarted(func() {
		if err := s.relay.OnSpeechStarted(); err != nil {
			log.Debug("call: barge-in handling failed", "streamSid", s.StreamSid(), "error", err)
		}
	})

	client.OnClosed(func(err error) {
		if err != nil {
			log.Warn("call: speech leg closed", "streamSid", s.StreamSid(), "error", err)
		}
		s.teardown("speech leg closed")
	})
}

// handleUserText advances the conversation on a transcribed caller
// utterance: record the answer (or treat it as free text past the script),
// then speak the next prompt or the final summary.
func (s *Session) handleUserText(text string) {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st == nil {
		return
	}

	var prompt string
	var done bool
	if s.engine.InSequence(st) {
		s.engine.RecordAnswer(st, text)
		prompt, done = s.engine.NextPrompt(st)
	} else {
		prompt, done = s.engine.HandleFreeText(st, text)
	}

	if done {
		prompt = s.engine.Finalize(st)
	}
	if err := s.speech.SendAssistantMessage(prompt); err != nil {
		log.Warn("call: failed to send assistant message", "streamSid", s.StreamSid(), "error", err)
	}
}

// teardown releases the call's resources exactly once. Closing either leg
// unblocks the other read loop; the closing transcript line is written
// before state is discarded. Concurrent teardown from both legs is safe.
func (s *Session) teardown(reason string) {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.phase = PhaseClosing
		sid := s.streamSid
		s.mu.Unlock()

		if sid != "" {
			s.transcripts.CallEnded(sid)
			s.hub.unregister(sid)
		}
		if err := s.speech.Close(); err != nil {
			log.Debug("call: speech close", "streamSid", sid, "error", err)
		}
		if err := s.tel.Close(); err != nil {
			log.Debug("call: telephony close", "streamSid", sid, "error", err)
		}
		if s.cancel != nil {
			s.cancel()
		}

		s.mu.Lock()
		s.phase = PhaseClosed
		s.state = nil
		s.mu.Unlock()

		log.Info("call: ended", "streamSid", sid, "reason", reason)
	})
}
