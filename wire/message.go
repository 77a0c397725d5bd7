package wire

import (
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/vkernel/types"
)

// Dict is a decoded structured-data blob (header, parent header, metadata, content).
type Dict = map[string]any

// Message is a decoded protocol unit.
//
// Identities are opaque routing frames preserved verbatim for direct replies.
// Broadcast messages carry none.
type Message struct {
	Identities   [][]byte
	Header       Dict
	ParentHeader Dict
	Metadata     Dict
	Content      Dict
	Buffers      [][]byte
}

// NewHeader builds a fresh header for a produced message.
func NewHeader(msgType, session string) Dict {
	return Dict{
		"msg_id":   uuid.NewString(),
		"session":  session,
		"username": types.Implementation,
		"date":     time.Now().UTC().Format(time.RFC3339Nano),
		"msg_type": msgType,
		"version":  types.ProtocolVersion,
	}
}

// MsgType returns the header's message-type tag, or "" if absent.
func (m *Message) MsgType() string {
	return StringField(m.Header, "msg_type")
}

// Reply builds a direct reply to m, routed back through m's identities.
func (m *Message) Reply(msgType, session string, content Dict) *Message {
	return &Message{
		Identities:   m.Identities,
		Header:       NewHeader(msgType, session),
		ParentHeader: m.Header,
		Metadata:     Dict{},
		Content:      content,
	}
}

// Broadcast builds a message parented on m with no routing identities.
func (m *Message) Broadcast(msgType, session string, content Dict) *Message {
	return &Message{
		Header:       NewHeader(msgType, session),
		ParentHeader: m.Header,
		Metadata:     Dict{},
		Content:      content,
	}
}

// StringField returns d[key] if it is a string, else "".
func StringField(d Dict, key string) string {
	if s, ok := d[key].(string); ok {
		return s
	}
	return ""
}

// BoolField returns d[key] if it is a bool, else false.
func BoolField(d Dict, key string) bool {
	if b, ok := d[key].(bool); ok {
		return b
	}
	return false
}
