// Package chessdto defines the wire messages exchanged between the chess
// server and its clients. Every frame is a JSON array [tag] or [tag, payload].
package chessdto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Tag string

const (
	TagCreated            Tag = "CREATED"
	TagConnected          Tag = "CONNECTED"
	TagStarted            Tag = "STARTED"
	TagFinished           Tag = "FINISHED"
	TagMoved              Tag = "MOVED"
	TagAborted            Tag = "ABORTED"
	TagResigned           Tag = "RESIGNED"
	TagDrawOffered        Tag = "DRAW_OFFERED"
	TagDrawAccepted       Tag = "DRAW_ACCEPTED"
	TagUndoOffered        Tag = "UNDO_OFFERED"
	TagUndoAccepted       Tag = "UNDO_ACCEPTED"
	TagPlayAgainOffered   Tag = "PLAY_AGAIN_OFFERED"
	TagPlayAgainAccepted  Tag = "PLAY_AGAIN_ACCEPTED"
	TagSentOfferDeclined  Tag = "SENT_OFFER_DECLINED"
	TagOfferCancelled     Tag = "OFFER_CANCELLED"
	TagSentOfferCancelled Tag = "SENT_OFFER_CANCELLED"
	TagDisconnected       Tag = "DISCONNECTED"
	TagReconnected        Tag = "RECONNECTED"
	TagError              Tag = "ERROR"
)

var knownTags = map[Tag]struct{}{
	TagCreated: {}, TagConnected: {}, TagStarted: {}, TagFinished: {},
	TagMoved: {}, TagAborted: {}, TagResigned: {},
	TagDrawOffered: {}, TagDrawAccepted: {},
	TagUndoOffered: {}, TagUndoAccepted: {},
	TagPlayAgainOffered: {}, TagPlayAgainAccepted: {},
	TagSentOfferDeclined: {}, TagOfferCancelled: {}, TagSentOfferCancelled: {},
	TagDisconnected: {}, TagReconnected: {}, TagError: {},
}

func (t Tag) Valid() bool {
	_, ok := knownTags[t]
	return ok
}

// Message is a decoded frame. Payload is nil for tag-only frames.
type Message struct {
	Tag     Tag
	Payload json.RawMessage
}

// Encode builds a frame. A nil payload produces a one-element array.
func Encode(tag Tag, payload any) ([]byte, error) {
	if !tag.Valid() {
		return nil, fmt.Errorf("encode: unknown tag %q", tag)
	}
	if payload == nil {
		return json.Marshal([]any{tag})
	}
	return json.Marshal([]any{tag, payload})
}

// Decode parses a frame without interpreting the payload.
func Decode(frame []byte) (Message, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(frame, &parts); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(parts) < 1 || len(parts) > 2 {
		return Message{}, fmt.Errorf("%w: expected 1 or 2 elements, got %d", ErrDecode, len(parts))
	}
	var tag Tag
	if err := json.Unmarshal(parts[0], &tag); err != nil {
		return Message{}, fmt.Errorf("%w: tag: %v", ErrDecode, err)
	}
	if !tag.Valid() {
		return Message{}, fmt.Errorf("%w: unknown tag %q", ErrDecode, tag)
	}
	msg := Message{Tag: tag}
	if len(parts) == 2 && !bytes.Equal(bytes.TrimSpace(parts[1]), []byte("null")) {
		msg.Payload = parts[1]
	}
	return msg, nil
}

// Bind decodes the payload into v. Unknown fields are rejected.
func (m Message) Bind(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s requires a payload", ErrDecode, m.Tag)
	}
	dec := json.NewDecoder(bytes.NewReader(m.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrDecode, m.Tag, err)
	}
	return nil
}
