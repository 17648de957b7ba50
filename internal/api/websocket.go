package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/ws"
)

var errInvalidMessage = errors.New("invalid message")

// handleWebSocket handles GET /ws.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	client, cleanup, err := s.setupWebSocketClient(w, r)
	if err != nil {
		return
	}

	defer cleanup()

	if err := client.Send(s.stateMessage("")); err != nil {
		return
	}

	if err := client.Send(s.strokesMessage("")); err != nil {
		return
	}

	s.handleMessages(r.Context(), client)
}

// setupWebSocketClient upgrades the connection and registers a client.
func (s *Server) setupWebSocketClient(w http.ResponseWriter, r *http.Request) (*ws.Client, func(), error) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "id", RequestIDFromContext(r.Context()), "error", err)

		return nil, nil, err
	}

	client := ws.NewClient(uuid.NewString(), conn)
	s.hub.Register(client)
	s.logger.Info("renderer connected", "client", client.ID)

	cleanup := func() {
		s.hub.Unregister(client)
		_ = client.Close()
		s.logger.Info("renderer disconnected", "client", client.ID)
	}

	return client, cleanup, nil
}

// handleMessages processes incoming messages until the connection fails.
func (s *Server) handleMessages(ctx context.Context, client *ws.Client) {
	for {
		msg, err := client.Receive()
		if err != nil {
			if msg.Type == "" {
				return
			}

			// The envelope was read but its payload was not.
			_ = client.SendError(msg.ID, ws.ErrorCodeInvalidMessage, err.Error())

			continue
		}

		ack, err := s.dispatch(ctx, client, msg)

		switch {
		case err != nil:
			_ = client.SendError(msg.ID, errorCode(err), err.Error())
		case msg.ID != "":
			_ = client.Send(ws.Message{Type: ws.MessageTypeAck, ID: msg.ID, Payload: ack})
		}
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, errInvalidMessage):
		return ws.ErrorCodeInvalidMessage
	case invalidInput(err):
		return ws.ErrorCodeInvalidInput
	default:
		return ws.ErrorCodeInternalError
	}
}

func (s *Server) dispatch(ctx context.Context, client *ws.Client, msg ws.Message) (ws.AckPayload, error) {
	var ack ws.AckPayload

	switch p := msg.Payload.(type) {
	case ws.ViewportPayload:
		return ack, s.session.SetViewport(ctx, chunk.Viewport{Width: p.Width, Height: p.Height})
	case ws.CameraPayload:
		return ack, s.moveCamera(ctx, p)
	case ws.StrokePayload:
		st, err := s.session.FinalizeStroke(ctx, p.Points, p.Style)
		if err != nil {
			return ack, err
		}

		ack.Stroke = &st.ID

		return ack, nil
	case ws.StrokeBeginPayload:
		return ack, s.session.BeginStroke(p.Style)
	case ws.StrokePointPayload:
		return ack, s.session.AddPoint(p.X, p.Y)
	case ws.SheetPayload:
		return s.sheet(ctx, p)
	}

	switch msg.Type {
	case ws.MessageTypeStrokeEnd:
		st, err := s.session.EndStroke(ctx)
		if err != nil {
			return ack, err
		}

		ack.Stroke = &st.ID

		return ack, nil
	case ws.MessageTypeSync:
		if err := s.session.Sync(ctx); err != nil {
			return ack, err
		}

		if err := client.Send(s.stateMessage(msg.ID)); err != nil {
			return ack, err
		}

		return ack, client.Send(s.strokesMessage(msg.ID))
	default:
		return ack, fmt.Errorf("%w: unexpected type %q", errInvalidMessage, msg.Type)
	}
}

func (s *Server) moveCamera(ctx context.Context, p ws.CameraPayload) error {
	switch p.Mode {
	case ws.CameraPan:
		return s.session.Pan(p.Camera)
	case "", ws.CameraSettle:
		return s.session.Settle(p.Camera)
	case ws.CameraJump:
		return s.session.Jump(ctx, p.Camera)
	default:
		return fmt.Errorf("%w: camera mode %q", errInvalidMessage, p.Mode)
	}
}

func (s *Server) sheet(ctx context.Context, p ws.SheetPayload) (ws.AckPayload, error) {
	var ack ws.AckPayload

	switch p.Action {
	case ws.SheetSwitch:
		return ack, s.session.SwitchSheet(ctx, p.Index)
	case ws.SheetAdd:
		i, err := s.session.AddSheet(ctx, p.Name)
		if err != nil {
			return ack, err
		}

		ack.Index = &i

		return ack, nil
	case ws.SheetRename:
		return ack, s.session.RenameSheet(ctx, p.Index, p.Name)
	case ws.SheetDelete:
		return ack, s.session.DeleteSheet(ctx, p.Index)
	case ws.SheetReorder:
		return ack, s.session.ReorderSheets(ctx, p.Index, p.To)
	default:
		return ack, fmt.Errorf("%w: sheet action %q", errInvalidMessage, p.Action)
	}
}
