// Package api serves the local renderer bridge: a few JSON endpoints and a
// WebSocket that streams document state and loaded strokes to renderers.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/document"
	"github.com/serroba/sketchbook/internal/library"
	"github.com/serroba/sketchbook/internal/logging"
	"github.com/serroba/sketchbook/internal/session"
	"github.com/serroba/sketchbook/internal/stroke"
	"github.com/serroba/sketchbook/internal/ws"
)

// Session is the part of *session.Session the bridge drives.
type Session interface {
	State() document.State
	Strokes() []*stroke.Stroke
	Thumbnail(i int) ([]byte, error)
	Subscribe(fn func(session.Change)) func()
	Sync(ctx context.Context) error

	SetViewport(ctx context.Context, vp chunk.Viewport) error
	Pan(cam chunk.Camera) error
	Settle(cam chunk.Camera) error
	Jump(ctx context.Context, cam chunk.Camera) error

	FinalizeStroke(ctx context.Context, points []stroke.Point, style stroke.Style) (*stroke.Stroke, error)
	BeginStroke(style stroke.Style) error
	AddPoint(x, y float32) error
	EndStroke(ctx context.Context) (*stroke.Stroke, error)

	SwitchSheet(ctx context.Context, i int) error
	AddSheet(ctx context.Context, name string) (int, error)
	RenameSheet(ctx context.Context, i int, name string) error
	DeleteSheet(ctx context.Context, i int) error
	ReorderSheets(ctx context.Context, i, j int) error

	Save(ctx context.Context, name string) (string, error)
}

var _ Session = (*session.Session)(nil)

// Server handles HTTP and WebSocket requests for one session.
type Server struct {
	session     Session
	library     *library.Library
	hub         *ws.Hub
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	unsubscribe func()
}

// ServerConfig holds configuration for creating a server.
type ServerConfig struct {
	Session Session
	// Library is optional; without it GET /library is not served.
	Library *library.Library
	Hub     *ws.Hub
	Logger  *slog.Logger
}

// NewServer creates a server and subscribes it to session changes, which
// are broadcast to every connected renderer.
func NewServer(cfg ServerConfig) *Server {
	logger := logging.OrNop(cfg.Logger)

	hub := cfg.Hub
	if hub == nil {
		hub = ws.NewHub(logger)
	}

	s := &Server{
		session: cfg.Session,
		library: cfg.Library,
		hub:     hub,
		logger:  logger,
		upgrader: websocket.Upgrader{
			// The bridge listens on a local address for a local renderer.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}

	s.unsubscribe = cfg.Session.Subscribe(s.broadcastChange)

	return s
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /document", s.handleGetDocument)
	mux.HandleFunc("GET /strokes", s.handleGetStrokes)
	mux.HandleFunc("GET /sheets/{index}/thumbnail", s.handleGetThumbnail)
	mux.HandleFunc("POST /save", s.handleSave)

	if s.library != nil {
		mux.HandleFunc("GET /library", s.handleListLibrary)
	}

	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return s.requestMiddleware(mux)
}

// Close stops broadcasting session changes.
func (s *Server) Close() {
	s.unsubscribe()
}

func (s *Server) broadcastChange(c session.Change) {
	if c.State {
		s.hub.Broadcast(s.stateMessage(""), "")
	}

	if c.Strokes {
		s.hub.Broadcast(s.strokesMessage(""), "")
	}
}

func (s *Server) stateMessage(id string) ws.Message {
	return ws.Message{Type: ws.MessageTypeState, ID: id, Payload: ws.NewStatePayload(s.session.State())}
}

func (s *Server) strokesMessage(id string) ws.Message {
	return ws.Message{Type: ws.MessageTypeStrokes, ID: id, Payload: ws.StrokesPayload{Strokes: s.session.Strokes()}}
}
