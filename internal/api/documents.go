package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/document"
	"github.com/serroba/sketchbook/internal/library"
	"github.com/serroba/sketchbook/internal/paging"
	"github.com/serroba/sketchbook/internal/session"
	"github.com/serroba/sketchbook/internal/stroke"
	"github.com/serroba/sketchbook/internal/ws"
)

// SaveRequest is the request body for saving the sketchbook.
type SaveRequest struct {
	Name string `json:"name"`
}

// SaveResponse is the response body for saving the sketchbook.
type SaveResponse struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// invalidInput reports errors caused by the request rather than the system.
func invalidInput(err error) bool {
	for _, target := range []error{
		document.ErrInvalidName,
		document.ErrDuplicateName,
		document.ErrLastSheet,
		document.ErrSheetIndex,
		stroke.ErrInvalidStyle,
		stroke.ErrStrokeTooShort,
		session.ErrNoStroke,
		session.ErrUnnamed,
		ws.ErrMissingPayload,
		chunk.ErrInvalidViewport,
		chunk.ErrOutOfRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

func statusFor(err error) int {
	switch {
	case invalidInput(err):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionClosed), errors.Is(err, paging.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "id", RequestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}

	http.Error(w, err.Error(), status)
}

// handleGetDocument handles GET /document.
func (s *Server) handleGetDocument(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, ws.NewStatePayload(s.session.State()))
}

// handleGetStrokes handles GET /strokes.
func (s *Server) handleGetStrokes(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, ws.StrokesPayload{Strokes: s.session.Strokes()})
}

// handleGetThumbnail handles GET /sheets/{index}/thumbnail.
func (s *Server) handleGetThumbnail(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "sheet index must be a number", http.StatusBadRequest)

		return
	}

	png, err := s.session.Thumbnail(index)
	if errors.Is(err, document.ErrSheetIndex) {
		http.Error(w, "sheet not found", http.StatusNotFound)

		return
	}

	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if len(png) == 0 {
		http.Error(w, "sheet has no thumbnail", http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Type", "image/png")

	if _, err := w.Write(png); err != nil {
		s.logger.Debug("write thumbnail", "error", err)
	}
}

// handleSave handles POST /save.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest

	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)

			return
		}
	}

	path, err := s.session.Save(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, SaveResponse{Name: s.session.State().Name, Path: path})
}

// handleListLibrary handles GET /library?sort=name|date&order=asc|desc.
func (s *Server) handleListLibrary(w http.ResponseWriter, r *http.Request) {
	by, order, err := library.ParseSort(r.URL.Query().Get("sort"), r.URL.Query().Get("order"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	entries, err := s.library.List(r.Context(), by, order)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if entries == nil {
		entries = []library.Entry{}
	}

	s.writeJSON(w, http.StatusOK, entries)
}
