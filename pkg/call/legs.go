package call

import (
	"sync"

	"github.com/gofiber/contrib/websocket"

	"github.com/insurly/go-insurly/pkg/twilio"
)

// telephonyConn is the session's view of the Twilio leg: the relay's
// outbound surface plus stream identity and shutdown.
type telephonyConn interface {
	TelephonyLeg
	SetStreamSid(sid string)
	Close() error
}

// speechConn is the session's view of the speech-service leg.
type speechConn interface {
	SpeechLeg
	SendAssistantMessage(text string) error
	Close() error
}

// twilioConn wraps the media-stream WebSocket with a write mutex. Outbound
// frames are dropped until the start event supplies the streamSid, since
// Twilio ignores frames without one anyway.
type twilioConn struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	streamSid string
}

func newTwilioConn(conn *websocket.Conn) *twilioConn {
	return &twilioConn{conn: conn}
}

// SetStreamSid records the stream id used on all outbound frames.
func (t *twilioConn) SetStreamSid(sid string) {
	t.mu.Lock()
	t.streamSid = sid
	t.mu.Unlock()
}

// send marshals and writes one message if the stream id is known.
func (t *twilioConn) send(build func(sid string) *twilio.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.streamSid == "" {
		return nil
	}
	data, err := build(t.streamSid).Bytes()
	if err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// SendMedia sends one outbound audio frame.
func (t *twilioConn) SendMedia(payload string) error {
	return t.send(func(sid string) *twilio.Message {
		return twilio.NewMediaMessage(sid, payload)
	})
}

// SendMark sends a playback synchronization marker.
func (t *twilioConn) SendMark(name string) error {
	return t.send(func(sid string) *twilio.Message {
		return twilio.NewMarkMessage(sid, name)
	})
}

// SendClear tells Twilio to discard buffered outbound audio.
func (t *twilioConn) SendClear() error {
	return t.send(func(sid string) *twilio.Message {
		return twilio.NewClearMessage(sid)
	})
}

// Close closes the underlying WebSocket.
func (t *twilioConn) Close() error {
	return t.conn.Close()
}
