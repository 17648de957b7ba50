package ws

import (
	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/document"
	"github.com/serroba/sketchbook/internal/stroke"
)

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	// Renderer to server messages.
	MessageTypeViewport    MessageType = "viewport"     // Drawable size changed
	MessageTypeCamera      MessageType = "camera"       // Camera moved
	MessageTypeStroke      MessageType = "stroke"       // Complete stroke
	MessageTypeStrokeBegin MessageType = "stroke_begin" // In-progress stroke started
	MessageTypeStrokePoint MessageType = "stroke_point" // Point added to the in-progress stroke
	MessageTypeStrokeEnd   MessageType = "stroke_end"   // In-progress stroke finished
	MessageTypeSheet       MessageType = "sheet"        // Sheet operation
	MessageTypeSync        MessageType = "sync"         // Request state and strokes

	// Server to renderer messages.
	MessageTypeAck     MessageType = "ack"     // Request applied
	MessageTypeState   MessageType = "state"   // Document summary
	MessageTypeStrokes MessageType = "strokes" // Loaded strokes in draw order
	MessageTypeError   MessageType = "error"   // Request failed
)

// Message is the envelope for all WebSocket communication. ID is chosen by
// the renderer and echoed in the ack or error for that request.
type Message struct {
	Type    MessageType `json:"type"`
	ID      string      `json:"id,omitempty"`
	Payload any         `json:"payload,omitempty"`
}

// Camera modes.
const (
	CameraPan    = "pan"
	CameraSettle = "settle"
	CameraJump   = "jump"
)

// ViewportPayload reports the renderer's drawable size.
type ViewportPayload struct {
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

// CameraPayload reports a camera move. Mode is pan, settle or jump.
type CameraPayload struct {
	Mode string `json:"mode"`
	chunk.Camera
}

// StrokePayload carries a complete point list.
type StrokePayload struct {
	Points []stroke.Point `json:"points"`
	stroke.Style
}

// StrokeBeginPayload starts an in-progress stroke.
type StrokeBeginPayload struct {
	stroke.Style
}

// StrokePointPayload adds one point.
type StrokePointPayload = stroke.Point

// Sheet actions.
const (
	SheetSwitch  = "switch"
	SheetAdd     = "add"
	SheetRename  = "rename"
	SheetDelete  = "delete"
	SheetReorder = "reorder"
)

// SheetPayload is a sheet operation. Index is the target sheet; To is the
// other index of a reorder.
type SheetPayload struct {
	Action string `json:"action"`
	Index  int    `json:"index"`
	To     int    `json:"to,omitempty"`
	Name   string `json:"name,omitempty"`
}

// AckPayload confirms a request. Stroke and Index are set when the request
// created a stroke or a sheet.
type AckPayload struct {
	Stroke *uint64 `json:"stroke,omitempty"`
	Index  *int    `json:"index,omitempty"`
}

// SheetInfo describes one sheet in a StatePayload.
type SheetInfo struct {
	ID           uint64       `json:"id"`
	Name         string       `json:"name"`
	Camera       chunk.Camera `json:"camera"`
	HasThumbnail bool         `json:"hasThumbnail"`
}

// StatePayload is the document summary.
type StatePayload struct {
	Name          string      `json:"name"`
	Dirty         bool        `json:"dirty"`
	ActiveSheet   int         `json:"activeSheet"`
	StrokeCounter uint64      `json:"strokeCounter"`
	Sheets        []SheetInfo `json:"sheets"`
	LoadedChunks  int         `json:"loadedChunks"`
}

// NewStatePayload summarizes st.
func NewStatePayload(st document.State) StatePayload {
	sheets := make([]SheetInfo, len(st.Sheets))
	for i, s := range st.Sheets {
		sheets[i] = SheetInfo{ID: s.ID, Name: s.Name, Camera: s.Camera, HasThumbnail: len(s.Thumbnail) > 0}
	}

	return StatePayload{
		Name:          st.Name,
		Dirty:         st.Dirty,
		ActiveSheet:   st.ActiveSheet,
		StrokeCounter: st.StrokeCounter,
		Sheets:        sheets,
		LoadedChunks:  st.LoadedChunks,
	}
}

// StrokesPayload is the loaded stroke list in draw order.
type StrokesPayload struct {
	Strokes []*stroke.Stroke `json:"strokes"`
}

// ErrorPayload reports an error to the renderer.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeInvalidInput   = "invalid_input"
	ErrorCodeInternalError  = "internal_error"
)
