package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/serroba/sketchbook/internal/api"
	"github.com/serroba/sketchbook/internal/archive"
	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/library"
	"github.com/serroba/sketchbook/internal/session"
	"github.com/serroba/sketchbook/internal/stroke"
	"github.com/serroba/sketchbook/internal/ws"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*api.Server, *session.Session) {
	t.Helper()

	root := t.TempDir()
	libDir := filepath.Join(root, "library")

	codec, err := archive.New(archive.Config{LibraryDir: libDir})
	require.NoError(t, err)

	lib, err := library.New(library.Config{Dir: libDir})
	require.NoError(t, err)

	sess, err := session.New(context.Background(), session.Config{
		WorkingDir: filepath.Join(root, ".work"),
		Codec:      codec,
		Library:    lib,
		Viewport:   chunk.Viewport{Width: 200, Height: 200},
	})
	require.NoError(t, err)

	srv := api.NewServer(api.ServerConfig{Session: sess, Library: lib})

	t.Cleanup(func() {
		srv.Close()
		_ = sess.Close(context.Background())
	})

	return srv, sess
}

func zigzag() []stroke.Point {
	return []stroke.Point{{X: 0, Y: 0}, {X: 10, Y: 8}, {X: 20, Y: 0}, {X: 30, Y: 8}}
}

func TestGetDocument(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/document", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	_, err := uuid.Parse(rec.Header().Get(api.HeaderRequestID))
	require.NoError(t, err, "middleware assigns a request id")

	var state ws.StatePayload
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&state))
	require.Len(t, state.Sheets, 1)
	require.Equal(t, "Sheet 1", state.Sheets[0].Name)
}

func TestRequestID_KeepsCallerValue(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/document", nil)
	req.Header.Set(api.HeaderRequestID, "abc")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, "abc", rec.Header().Get(api.HeaderRequestID))
}

func TestGetStrokes(t *testing.T) {
	t.Parallel()

	srv, sess := newServer(t)

	_, err := sess.FinalizeStroke(context.Background(), zigzag(), stroke.DefaultStyle())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/strokes", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var payload ws.StrokesPayload
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	require.Len(t, payload.Strokes, 1)
	require.Equal(t, uint64(0), payload.Strokes[0].ID)
}

func TestSaveAndThumbnail(t *testing.T) {
	t.Parallel()

	srv, sess := newServer(t)
	handler := srv.Handler()

	_, err := sess.FinalizeStroke(context.Background(), zigzag(), stroke.DefaultStyle())
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"thumbnail before save", http.MethodGet, "/sheets/0/thumbnail", "", http.StatusNotFound},
		{"save without name", http.MethodPost, "/save", "", http.StatusBadRequest},
		{"save bad body", http.MethodPost, "/save", "{", http.StatusBadRequest},
		{"save invalid name", http.MethodPost, "/save", `{"name": "a/b"}`, http.StatusBadRequest},
		{"save", http.MethodPost, "/save", `{"name": "sketch"}`, http.StatusOK},
		{"thumbnail after save", http.MethodGet, "/sheets/0/thumbnail", "", http.StatusOK},
		{"thumbnail out of range", http.MethodGet, "/sheets/4/thumbnail", "", http.StatusNotFound},
		{"thumbnail bad index", http.MethodGet, "/sheets/x/thumbnail", "", http.StatusBadRequest},
		{"library", http.MethodGet, "/library?sort=date&order=desc", "", http.StatusOK},
		{"library bad sort", http.MethodGet, "/library?sort=size", "", http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/save", "", http.StatusMethodNotAllowed},
	}

	// Sequential: later cases depend on the save.
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != tt.want {
			t.Errorf("%s: expected %d, got %d (%s)", tt.name, tt.want, rec.Code, rec.Body.String())
		}
	}

	require.Equal(t, "sketch", sess.State().Name)
	require.False(t, sess.State().Dirty)
}

func TestSave_ResponseBody(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)

	req := httptest.NewRequest(http.MethodPost, "/save", bytes.NewBufferString(`{"name": "fresh"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.SaveResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "fresh", resp.Name)
	require.Equal(t, "fresh"+archive.Ext, filepath.Base(resp.Path))
}

// wsConn dials the bridge and reads messages with a deadline.
type wsConn struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, handler http.Handler) *wsConn {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	_ = resp.Body.Close()

	t.Cleanup(func() { _ = conn.Close() })

	return &wsConn{t: t, conn: conn}
}

type rawMessage struct {
	Type    ws.MessageType  `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func (c *wsConn) send(msg ws.Message) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

func (c *wsConn) read() rawMessage {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg rawMessage
	require.NoError(c.t, c.conn.ReadJSON(&msg))

	return msg
}

// until reads until a message of type typ answering id arrives.
func (c *wsConn) until(typ ws.MessageType, id string) rawMessage {
	c.t.Helper()

	for {
		if msg := c.read(); msg.Type == typ && msg.ID == id {
			return msg
		}
	}
}

func TestWebSocket_Session(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)
	c := dial(t, srv.Handler())

	// Initial state and strokes.
	require.Equal(t, ws.MessageTypeState, c.read().Type)
	require.Equal(t, ws.MessageTypeStrokes, c.read().Type)

	c.send(ws.Message{Type: ws.MessageTypeStroke, ID: "s1", Payload: ws.StrokePayload{Points: zigzag(), Style: stroke.DefaultStyle()}})

	var ack ws.AckPayload
	require.NoError(t, json.Unmarshal(c.until(ws.MessageTypeAck, "s1").Payload, &ack))
	require.NotNil(t, ack.Stroke)
	require.Equal(t, uint64(0), *ack.Stroke)

	// In-progress stroke, only the end is acknowledged.
	c.send(ws.Message{Type: ws.MessageTypeStrokeBegin, Payload: ws.StrokeBeginPayload{Style: stroke.DefaultStyle()}})

	for _, p := range zigzag() {
		c.send(ws.Message{Type: ws.MessageTypeStrokePoint, Payload: p})
	}

	c.send(ws.Message{Type: ws.MessageTypeStrokeEnd, ID: "s2"})
	require.NoError(t, json.Unmarshal(c.until(ws.MessageTypeAck, "s2").Payload, &ack))
	require.Equal(t, uint64(1), *ack.Stroke)

	c.send(ws.Message{Type: ws.MessageTypeSheet, ID: "add", Payload: ws.SheetPayload{Action: ws.SheetAdd}})
	require.NoError(t, json.Unmarshal(c.until(ws.MessageTypeAck, "add").Payload, &ack))
	require.Equal(t, 1, *ack.Index)

	c.send(ws.Message{Type: ws.MessageTypeSync, ID: "sync"})

	var strokes ws.StrokesPayload
	require.NoError(t, json.Unmarshal(c.until(ws.MessageTypeStrokes, "sync").Payload, &strokes))
	require.Len(t, strokes.Strokes, 2)
}

func TestWebSocket_Errors(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)
	c := dial(t, srv.Handler())

	tests := []struct {
		msg  ws.Message
		code string
	}{
		{ws.Message{Type: ws.MessageTypeSheet, ID: "1", Payload: ws.SheetPayload{Action: ws.SheetDelete}}, ws.ErrorCodeInvalidInput},
		{ws.Message{Type: ws.MessageTypeSheet, ID: "2", Payload: ws.SheetPayload{Action: "explode"}}, ws.ErrorCodeInvalidMessage},
		{ws.Message{Type: ws.MessageTypeCamera, ID: "3", Payload: ws.CameraPayload{Mode: "teleport"}}, ws.ErrorCodeInvalidMessage},
		{ws.Message{Type: ws.MessageTypeStrokeEnd, ID: "4"}, ws.ErrorCodeInvalidInput},
		{ws.Message{Type: ws.MessageTypeViewport, ID: "5"}, ws.ErrorCodeInvalidMessage},
		{ws.Message{Type: ws.MessageTypeState, ID: "6"}, ws.ErrorCodeInvalidMessage},
		{ws.Message{Type: ws.MessageTypeStroke, ID: "7", Payload: ws.StrokePayload{Points: zigzag()[:2]}}, ws.ErrorCodeInvalidInput},
		{ws.Message{Type: ws.MessageTypeViewport, ID: "8", Payload: ws.ViewportPayload{Width: 1e9, Height: 1e9}}, ws.ErrorCodeInvalidInput},
	}

	for _, tt := range tests {
		c.send(tt.msg)

		var payload ws.ErrorPayload
		require.NoError(t, json.Unmarshal(c.until(ws.MessageTypeError, tt.msg.ID).Payload, &payload))

		if payload.Code != tt.code {
			t.Errorf("message %s: expected code %s, got %s (%s)", tt.msg.ID, tt.code, payload.Code, payload.Message)
		}
	}
}

func TestWebSocket_BroadcastsPaging(t *testing.T) {
	t.Parallel()

	srv, sess := newServer(t)

	far := []stroke.Point{{X: 50000, Y: 0}, {X: 50010, Y: 8}, {X: 50020, Y: 0}}
	_, err := sess.FinalizeStroke(context.Background(), far, stroke.DefaultStyle())
	require.NoError(t, err)
	require.NoError(t, sess.Jump(context.Background(), chunk.DefaultCamera))

	c := dial(t, srv.Handler())
	c.read()
	c.read()

	c.send(ws.Message{Type: ws.MessageTypeCamera, Payload: ws.CameraPayload{Mode: ws.CameraJump, Camera: chunk.Camera{X: 50000, Zoom: 1}}})

	// The paging result is broadcast without an id.
	var strokes ws.StrokesPayload
	require.NoError(t, json.Unmarshal(c.until(ws.MessageTypeStrokes, "").Payload, &strokes))
	require.Len(t, strokes.Strokes, 1)
}
