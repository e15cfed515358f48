package broker

import "encoding/json"

// TopicAll receives every update regardless of event.
const TopicAll = "*"

// Client -> Broker
type ClientMessage struct {
	Type   string          `json:"type"`             // "subscribe" | "unsubscribe" | "publish"
	Topic  string          `json:"topic,omitempty"`  // event id or "*"; required for subscribe/unsubscribe
	Update json.RawMessage `json:"update,omitempty"` // required for publish
}

// Broker -> Client control frames. Updates themselves go out as bare
// realtime.Update JSON.
type ServerMessage struct {
	Type    string `json:"type"` // "ack" | "error"
	Message string `json:"message,omitempty"`
}

// PublishFrame wraps an update for publishing over the websocket.
func PublishFrame(update any) (ClientMessage, error) {
	raw, err := json.Marshal(update)
	if err != nil {
		return ClientMessage{}, err
	}
	return ClientMessage{Type: "publish", Update: raw}, nil
}
