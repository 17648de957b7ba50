package api_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/serroba/sketchbook/internal/api"
	"github.com/serroba/sketchbook/internal/archive"
	"github.com/serroba/sketchbook/internal/logging"
	"github.com/serroba/sketchbook/internal/session"
)

func TestRequestMiddleware_LogsStatus(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer

	logger, err := logging.New(&logs, "debug")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	root := t.TempDir()

	codec, err := archive.New(archive.Config{LibraryDir: filepath.Join(root, "library")})
	if err != nil {
		t.Fatalf("codec: %v", err)
	}

	sess, err := session.New(context.Background(), session.Config{
		WorkingDir: filepath.Join(root, ".work"),
		Codec:      codec,
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	srv := api.NewServer(api.ServerConfig{Session: sess, Logger: logger})

	t.Cleanup(func() {
		srv.Close()
		_ = sess.Close(context.Background())
	})

	h := srv.Handler()

	t.Run("unknown route is 404 with an id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}

		if rec.Header().Get(api.HeaderRequestID) == "" {
			t.Error("expected a request id header")
		}

		if !bytes.Contains(logs.Bytes(), []byte("status=404")) {
			t.Errorf("expected the status in the request log, got %q", logs.String())
		}
	})

	t.Run("library is not served without one", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/library", nil)
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})
}

func TestRequestIDFromContext(t *testing.T) {
	t.Parallel()

	if id := api.RequestIDFromContext(context.Background()); id != "" {
		t.Errorf("expected empty string, got %q", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := api.RequestIDFromContext(req.Context()); id != "" {
		t.Errorf("expected empty string outside the middleware, got %q", id)
	}
}
