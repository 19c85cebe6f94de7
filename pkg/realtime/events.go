package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
)

// serverEvent is the subset of Realtime server event fields the bridge
// consumes. Events carry different fields per type; absent ones stay zero.
type serverEvent struct {
	Type   string `json:"type"`
	Delta  string `json:"delta,omitempty"`   // response.audio.delta payload
	ItemID string `json:"item_id,omitempty"` // owning item for audio deltas
	Item   *item  `json:"item,omitempty"`    // conversation.item.create body
}

// item is a created conversation item.
type item struct {
	ID      string        `json:"id,omitempty"`
	Role    string        `json:"role,omitempty"`
	Content []contentPart `json:"content,omitempty"`
}

// contentPart is one entry of an item's content array.
type contentPart struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// Text joins the item's text parts into one utterance string.
func (i *item) Text() string {
	var parts []string
	for _, c := range i.Content {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, " ")
}

// parseServerEvent parses one raw server event.
func parseServerEvent(data []byte) (*serverEvent, error) {
	var ev serverEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("realtime: failed to parse event: %w", err)
	}
	return &ev, nil
}
