package call

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/insurly/go-insurly/pkg/flow"
	"github.com/insurly/go-insurly/pkg/transcript"
)

// fakeTelConn is a telephony leg that records everything sent to it.
type fakeTelConn struct {
	mu        sync.Mutex
	streamSid string
	media     []string
	marks     []string
	clears    int
	closed    int
}

func (f *fakeTelConn) SetStreamSid(sid string) {
	f.mu.Lock()
	f.streamSid = sid
	f.mu.Unlock()
}

func (f *fakeTelConn) SendMedia(payload string) error {
	f.mu.Lock()
	f.media = append(f.media, payload)
	f.mu.Unlock()
	return nil
}

func (f *fakeTelConn) SendMark(name string) error {
	f.mu.Lock()
	f.marks = append(f.marks, name)
	f.mu.Unlock()
	return nil
}

func (f *fakeTelConn) SendClear() error {
	f.mu.Lock()
	f.clears++
	f.mu.Unlock()
	return nil
}

func (f *fakeTelConn) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

// fakeSpeechConn is a speech leg that records everything sent to it.
type fakeSpeechConn struct {
	mu       sync.Mutex
	appended []string
	messages []string
	closed   int
}

func (f *fakeSpeechConn) AppendAudio(payload string) error {
	f.mu.Lock()
	f.appended = append(f.appended, payload)
	f.mu.Unlock()
	return nil
}

func (f *fakeSpeechConn) TruncateItem(itemID string, audioEndMs int64) error {
	return nil
}

func (f *fakeSpeechConn) SendAssistantMessage(text string) error {
	f.mu.Lock()
	f.messages = append(f.messages, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeSpeechConn) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeSpeechConn) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func newTestSession(t *testing.T) (*Session, *Hub, *fakeTelConn, *fakeSpeechConn) {
	t.Helper()
	w := transcript.NewWriter(filepath.Join(t.TempDir(), "transcript.txt"))
	hub := NewHub(Config{OpenAIKey: "sk-test"}, w)
	tel := &fakeTelConn{}
	speech := &fakeSpeechConn{}
	return newSession(hub, tel, speech, w, flow.ClaimScript()), hub, tel, speech
}

func startFrame(sid string) []byte {
	return []byte(fmt.Sprintf(`{"event":"start","start":{"streamSid":%q}}`, sid))
}

func mediaFrame(timestampMs int64, payload string) []byte {
	return []byte(fmt.Sprintf(`{"event":"media","media":{"payload":%q,"timestamp":%d}}`, payload, timestampMs))
}

func TestStartEventActivatesSession(t *testing.T) {
	sess, hub, tel, _ := newTestSession(t)

	if sess.Phase() != PhaseConnecting {
		t.Fatalf("phase = %v before start, want connecting", sess.Phase())
	}
	if stop := sess.HandleTwilioMessage(startFrame("MZ123")); stop {
		t.Fatal("start event must not stop the read loop")
	}

	if sess.Phase() != PhaseActive {
		t.Errorf("phase = %v, want active", sess.Phase())
	}
	if sess.StreamSid() != "MZ123" {
		t.Errorf("streamSid = %q, want MZ123", sess.StreamSid())
	}
	if tel.streamSid != "MZ123" {
		t.Errorf("telephony leg streamSid = %q, want MZ123", tel.streamSid)
	}
	if hub.CallCount() != 1 {
		t.Errorf("hub call count = %d, want 1", hub.CallCount())
	}
}

func TestMediaForwardsToSpeechLeg(t *testing.T) {
	sess, hub, _, speech := newTestSession(t)
	sess.HandleTwilioMessage(startFrame("MZ123"))

	sess.HandleTwilioMessage(mediaFrame(100, "chunk-a"))
	sess.HandleTwilioMessage(mediaFrame(120, "chunk-b"))

	if len(speech.appended) != 2 || speech.appended[0] != "chunk-a" {
		t.Errorf("appended = %v, want [chunk-a chunk-b]", speech.appended)
	}
	if got := hub.GetStats().FramesInbound; got != 2 {
		t.Errorf("inbound frame count = %d, want 2", got)
	}
}

func TestMalformedAndUnknownFramesIgnored(t *testing.T) {
	sess, _, _, _ := newTestSession(t)
	sess.HandleTwilioMessage(startFrame("MZ123"))

	frames := [][]byte{
		[]byte(`{not json`),
		[]byte(`{"event":"connected"}`),
		[]byte(`{"event":"dtmf"}`),
		[]byte(`{"event":"media"}`),
		[]byte(`{"event":"start"}`),
	}
	for _, f := range frames {
		if stop := sess.HandleTwilioMessage(f); stop {
			t.Errorf("frame %s stopped the loop", f)
		}
	}
	if sess.Phase() != PhaseActive {
		t.Errorf("phase = %v after junk frames, want active", sess.Phase())
	}
}

func TestStopEventTearsDown(t *testing.T) {
	sess, hub, tel, speech := newTestSession(t)
	sess.HandleTwilioMessage(startFrame("MZ123"))

	if stop := sess.HandleTwilioMessage([]byte(`{"event":"stop"}`)); !stop {
		t.Fatal("stop event must end the read loop")
	}

	if sess.Phase() != PhaseClosed {
		t.Errorf("phase = %v, want closed", sess.Phase())
	}
	if hub.CallCount() != 0 {
		t.Errorf("hub call count = %d after stop, want 0", hub.CallCount())
	}
	if tel.closed != 1 || speech.closed != 1 {
		t.Errorf("closes = tel %d / speech %d, want 1 each", tel.closed, speech.closed)
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	sess, _, tel, speech := newTestSession(t)
	sess.HandleTwilioMessage(startFrame("MZ123"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.teardown("test")
		}()
	}
	wg.Wait()

	if tel.closed != 1 || speech.closed != 1 {
		t.Errorf("closes = tel %d / speech %d, want 1 each", tel.closed, speech.closed)
	}
	if sess.Phase() != PhaseClosed {
		t.Errorf("phase = %v, want closed", sess.Phase())
	}
}

func TestUserTextBeforeStartIsDropped(t *testing.T) {
	sess, _, _, speech := newTestSession(t)

	sess.handleUserText("hello?")

	if got := speech.sentMessages(); len(got) != 0 {
		t.Errorf("messages = %v, want none before start", got)
	}
}

func TestCarClaimConversation(t *testing.T) {
	sess, _, _, speech := newTestSession(t)
	sess.HandleTwilioMessage(startFrame("MZ123"))

	inputs := []string{"POL123", "car accident", "no", "minor", "no injuries", "done"}
	for _, in := range inputs {
		sess.handleUserText(in)
	}

	got := speech.sentMessages()
	if len(got) != len(inputs) {
		t.Fatalf("sent %d prompts, want %d:\n%s", len(got), len(inputs), strings.Join(got, "\n"))
	}

	wantPrefixes := []string{
		"Great, now please describe the nature of your claim",
		"Was there any alcohol involved?",
		"How severe was the accident?",
		"Were there any injuries?",
		"Thanks. Anything else you'd like to add",
		"Here is the summary of your claim:",
	}
	for i, want := range wantPrefixes {
		if !strings.HasPrefix(got[i], want) {
			t.Errorf("prompt %d = %q, want prefix %q", i, got[i], want)
		}
	}

	summary := got[len(got)-1]
	for _, line := range []string{
		"- policyId: POL123",
		"- claimType: car accident",
		"- alcoholInvolvement: no",
		"- accidentSeverity: minor",
		"- accidentInjuries: no injuries",
		"- accidentComplete: done",
	} {
		if !strings.Contains(summary, line) {
			t.Errorf("summary missing %q:\n%s", line, summary)
		}
	}
}

func TestUnrecognizedClaimFallsBackToFreeText(t *testing.T) {
	sess, _, _, speech := newTestSession(t)
	sess.HandleTwilioMessage(startFrame("MZ123"))

	sess.handleUserText("POL999")
	sess.handleUserText("my neighbor's drone crashed into my garden")
	sess.handleUserText("that's everything really")
	sess.handleUserText("ok I'm DONE now")

	got := speech.sentMessages()
	if len(got) != 4 {
		t.Fatalf("sent %d prompts, want 4:\n%s", len(got), strings.Join(got, "\n"))
	}
	if !strings.HasPrefix(got[1], "We have minimal details for your claim.") {
		t.Errorf("prompt after unrecognized claim = %q", got[1])
	}
	if !strings.HasPrefix(got[2], "Noted. Anything else?") {
		t.Errorf("reminder prompt = %q", got[2])
	}
	if !strings.HasPrefix(got[3], "Here is the summary of your claim:") {
		t.Errorf("final prompt = %q", got[3])
	}
}

func TestSessionsDoNotShareState(t *testing.T) {
	w := transcript.NewWriter(filepath.Join(t.TempDir(), "transcript.txt"))
	hub := NewHub(Config{OpenAIKey: "sk-test"}, w)

	telA, speechA := &fakeTelConn{}, &fakeSpeechConn{}
	telB, speechB := &fakeTelConn{}, &fakeSpeechConn{}
	a := newSession(hub, telA, speechA, w, flow.ClaimScript())
	b := newSession(hub, telB, speechB, w, flow.ClaimScript())

	a.HandleTwilioMessage(startFrame("MZ-A"))
	b.HandleTwilioMessage(startFrame("MZ-B"))
	if hub.CallCount() != 2 {
		t.Fatalf("hub call count = %d, want 2", hub.CallCount())
	}

	// Interleave the two conversations and one call's assistant audio.
	a.handleUserText("POL-A")
	b.handleUserText("POL-B")
	a.relay.OnAssistantUtteranceStarted("item_a")
	a.relay.OnAssistantAudioDelta("audio-a")
	b.handleUserText("theft")
	a.handleUserText("vandalism")

	if got := a.state.Branch; got != flow.BranchVandalism {
		t.Errorf("session A branch = %v, want vandalism", got)
	}
	if got := b.state.Branch; got != flow.BranchTheft {
		t.Errorf("session B branch = %v, want theft", got)
	}
	if got := a.relay.MarkQueueDepth(); got != 1 {
		t.Errorf("session A mark queue depth = %d, want 1", got)
	}
	if got := b.relay.MarkQueueDepth(); got != 0 {
		t.Errorf("session B mark queue depth = %d, want 0", got)
	}
	if len(telB.media) != 0 {
		t.Errorf("session B received session A audio: %v", telB.media)
	}
}
