// Package hub fans dashboard feeds out to websocket clients. Every hub runs
// one goroutine that owns the client set; slow clients are dropped. A hub can
// also accept control frames from its clients and answer the sender.
package hub

import (
	"encoding/json"

	"github.com/gofiber/websocket/v2"
)

// MessageType is the payload format of a Message
type MessageType int

const (
	// JSONMessage carries a session snapshot, console entry or reply
	JSONMessage MessageType = iota
	// BinaryMessage carries a JPEG preview frame
	BinaryMessage
)

// frame returns the websocket frame type used on the wire
func (t MessageType) frame() int {
	if t == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// Message is one payload queued for a client
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps an encoded frame
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// Handler answers a text frame sent by a client. A nil reply sends nothing;
// an error is reported to the sender as {"error": "..."}.
type Handler func(data []byte) (reply any, err error)

// ErrorReply is sent to a client whose control frame was rejected
type ErrorReply struct {
	Error string `json:"error"`
}

// encodeReply turns a handler result into the message for the sender
func encodeReply(reply any, err error) (Message, bool) {
	if err != nil {
		reply = ErrorReply{Error: err.Error()}
	}
	if reply == nil {
		return Message{}, false
	}
	data, merr := json.Marshal(reply)
	if merr != nil {
		data, _ = json.Marshal(ErrorReply{Error: merr.Error()})
	}
	return NewJSONMessage(data), true
}
