package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrMissingPayload is returned for a message type that needs a payload.
var ErrMissingPayload = errors.New("missing payload")

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Client is a connected renderer.
type Client struct {
	ID   string
	conn Conn

	mu sync.Mutex
}

// NewClient creates a new client wrapper.
func NewClient(id string, conn Conn) *Client {
	return &Client{ID: id, conn: conn}
}

// Send sends a message to the client.
func (c *Client) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.WriteJSON(msg)
}

// SendError sends an error message answering request id.
func (c *Client) SendError(id, code, message string) error {
	return c.Send(Message{
		Type:    MessageTypeError,
		ID:      id,
		Payload: ErrorPayload{Code: code, Message: message},
	})
}

// Receive reads a message from the client and decodes its payload into the
// payload type of its message type. Payload decoding errors are returned
// together with the message so the caller can answer with its id.
func (c *Client) Receive() (Message, error) {
	var raw struct {
		Type    MessageType     `json:"type"`
		ID      string          `json:"id"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := c.conn.ReadJSON(&raw); err != nil {
		return Message{}, err
	}

	msg := Message{Type: raw.Type, ID: raw.ID}

	var err error

	switch raw.Type {
	case MessageTypeViewport:
		msg.Payload, err = decode[ViewportPayload](raw.Payload)
	case MessageTypeCamera:
		msg.Payload, err = decode[CameraPayload](raw.Payload)
	case MessageTypeStroke:
		msg.Payload, err = decode[StrokePayload](raw.Payload)
	case MessageTypeStrokeBegin:
		msg.Payload, err = decode[StrokeBeginPayload](raw.Payload)
	case MessageTypeStrokePoint:
		msg.Payload, err = decode[StrokePointPayload](raw.Payload)
	case MessageTypeSheet:
		msg.Payload, err = decode[SheetPayload](raw.Payload)
	case MessageTypeStrokeEnd, MessageTypeSync:
		// No payload.
	case MessageTypeAck, MessageTypeState, MessageTypeStrokes, MessageTypeError:
		// Server-to-client messages - keep raw payload
		msg.Payload = raw.Payload
	}

	return msg, err
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T

	if len(raw) == 0 {
		return v, ErrMissingPayload
	}

	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode payload: %w", err)
	}

	return v, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
