// Package call bridges one Twilio media stream to one OpenAI Realtime
// session: audio relay with barge-in, event routing for both legs, and the
// per-call lifecycle from connect to teardown.
package call

import (
	"sync"

	"github.com/insurly/go-insurly/pkg/twilio"
)

// TelephonyLeg sends frames back to the caller's media stream.
type TelephonyLeg interface {
	SendMedia(payload string) error
	SendMark(name string) error
	SendClear() error
}

// SpeechLeg receives forwarded caller audio and playback control.
type SpeechLeg interface {
	AppendAudio(payload string) error
	TruncateItem(itemID string, audioEndMs int64) error
}

// Relay forwards audio opaquely in both directions and tracks the timing
// needed to truncate assistant playback when the caller barges in. Both
// stream directions share one timestamp space: the inbound media clock.
//
// One mutex guards the shared fields; the telephony loop writes
// latestInboundMs and pops the mark queue, the speech loop writes the rest.
type Relay struct {
	tel    TelephonyLeg
	speech SpeechLeg

	mu sync.Mutex
	// latestInboundMs is the timestamp of the newest caller audio frame.
	latestInboundMs int64
	// responseStartMs is the inbound clock reading when the current
	// assistant utterance began playing. Valid only while responseStarted.
	responseStartMs int64
	responseStarted bool
	// lastItemID names the assistant utterance currently streaming.
	lastItemID string
	// markQueue holds pending playback acknowledgments, oldest first.
	markQueue []string
}

// NewRelay creates a relay between the two legs.
func NewRelay(tel TelephonyLeg, speech SpeechLeg) *Relay {
	return &Relay{tel: tel, speech: speech}
}

// ForwardInbound records the frame's timestamp and passes the payload to
// the speech leg unmodified. Timestamps are trusted to be monotonic; the
// relay does not validate regressions.
func (r *Relay) ForwardInbound(timestampMs int64, payload string) error {
	r.mu.Lock()
	r.latestInboundMs = timestampMs
	r.mu.Unlock()

	return r.speech.AppendAudio(payload)
}

// OnAssistantAudioDelta forwards one assistant audio chunk to the caller.
// The first chunk of an utterance pins responseStartMs to the current
// inbound clock so barge-in can compute how much audio was actually heard.
// Each chunk is followed by a mark so Twilio acknowledges playback progress.
func (r *Relay) OnAssistantAudioDelta(payload string) error {
	r.mu.Lock()
	if !r.responseStarted {
		r.responseStarted = true
		r.responseStartMs = r.latestInboundMs
	}
	r.mu.Unlock()

	if err := r.tel.SendMedia(payload); err != nil {
		return err
	}
	if err := r.tel.SendMark(twilio.MarkResponsePart); err != nil {
		return err
	}

	r.mu.Lock()
	r.markQueue = append(r.markQueue, twilio.MarkResponsePart)
	r.mu.Unlock()
	return nil
}

// OnMarkAcknowledged pops the oldest pending mark. Queue depth is how far
// ahead of real-time playback the outbound buffer has drifted.
func (r *Relay) OnMarkAcknowledged() {
	r.mu.Lock()
	if len(r.markQueue) > 0 {
		r.markQueue = r.markQueue[1:]
	}
	r.mu.Unlock()
}

// OnAssistantUtteranceStarted records the item id of the assistant
// utterance now streaming, the target for a later truncation.
func (r *Relay) OnAssistantUtteranceStarted(itemID string) {
	r.mu.Lock()
	r.lastItemID = itemID
	r.mu.Unlock()
}

// OnSpeechStarted handles caller barge-in. If no assistant audio is
// playing it is a no-op. Otherwise it truncates the in-flight utterance at
// the elapsed playback time (clamped non-negative), clears Twilio's
// outbound buffer, and resets the timing context. Best-effort: without a
// known item id the truncate is skipped but the buffer-clear still fires.
func (r *Relay) OnSpeechStarted() error {
	r.mu.Lock()
	if !r.responseStarted {
		r.mu.Unlock()
		return nil
	}
	elapsed := r.latestInboundMs - r.responseStartMs
	if elapsed < 0 {
		elapsed = 0
	}
	itemID := r.lastItemID
	r.responseStarted = false
	r.responseStartMs = 0
	r.markQueue = nil
	r.mu.Unlock()

	var truncErr error
	if itemID != "" {
		truncErr = r.speech.TruncateItem(itemID, elapsed)
	}
	if err := r.tel.SendClear(); err != nil {
		return err
	}
	return truncErr
}

// MarkQueueDepth returns the number of unacknowledged marks.
func (r *Relay) MarkQueueDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.markQueue)
}
