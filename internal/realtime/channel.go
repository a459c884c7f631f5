// Package realtime pushes named messages to every live connection of a user.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUserOffline means no connection accepted the message.
var ErrUserOffline = errors.New("user_offline")

// Message is the frame written to the websocket.
type Message struct {
	Method  string `json:"method"`
	Payload any    `json:"payload"`
}

// Channel delivers a message to all connections grouped under userID.
type Channel interface {
	SendToUser(ctx context.Context, userID, method string, payload any) error
}

func encode(method string, payload any) ([]byte, error) {
	return json.Marshal(Message{Method: method, Payload: payload})
}
