package realtime

import "time"

// Protocol intents sent by the client over the realtime transport. Inbound
// message types are application-defined beyond these three; dispatch never
// branches on type, only on channel.
const (
	// TypeSubscribe asks the server to start routing a channel to this connection.
	TypeSubscribe = "subscribe"
	// TypeUnsubscribe ends server-side delivery for a channel.
	TypeUnsubscribe = "unsubscribe"
	// TypePublish carries an application payload to a channel.
	TypePublish = "publish"
)

// Message is the wire envelope shared by outbound intents and inbound
// application messages.
type Message struct {
	Type      string `json:"type"`
	Channel   string `json:"channel"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp,omitempty"`
	ID        string `json:"id,omitempty"`
}

// Handler receives messages delivered to a subscription.
type Handler func(msg Message)

// Filter decides per-subscription whether a message is delivered.
// A nil filter passes everything.
type Filter func(msg Message) bool

// newIntent builds a subscribe/unsubscribe envelope for a channel.
// Intent messages carry an empty data object.
func newIntent(intentType, channel string) Message {
	return Message{
		Type:      intentType,
		Channel:   channel,
		Data:      map[string]any{},
		Timestamp: time.Now().UnixMilli(),
	}
}
