package session_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/serroba/sketchbook/internal/archive"
	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/document"
	"github.com/serroba/sketchbook/internal/library"
	"github.com/serroba/sketchbook/internal/session"
	"github.com/serroba/sketchbook/internal/stroke"
	"github.com/stretchr/testify/require"
)

type env struct {
	cfg session.Config
	lib *library.Library
}

func newEnv(t *testing.T) env {
	t.Helper()

	root := t.TempDir()
	libDir := filepath.Join(root, "library")

	codec, err := archive.New(archive.Config{LibraryDir: libDir})
	require.NoError(t, err)

	lib, err := library.New(library.Config{Dir: libDir})
	require.NoError(t, err)

	return env{
		cfg: session.Config{
			WorkingDir: filepath.Join(root, ".work"),
			Codec:      codec,
			Library:    lib,
			Viewport:   chunk.Viewport{Width: 200, Height: 200},
		},
		lib: lib,
	}
}

func start(t *testing.T, e env) *session.Session {
	t.Helper()

	s, err := session.New(context.Background(), e.cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	return s
}

func star() []stroke.Point {
	return []stroke.Point{
		{X: 0, Y: 10}, {X: 3, Y: 3}, {X: 10, Y: 0}, {X: 3, Y: -3},
		{X: 0, Y: -10}, {X: -3, Y: -3}, {X: -10, Y: 0}, {X: -3, Y: 3}, {X: 0, Y: 10},
	}
}

func zigzag(x float32) []stroke.Point {
	return []stroke.Point{{X: x, Y: 0}, {X: x + 10, Y: 8}, {X: x + 20, Y: 0}, {X: x + 30, Y: 8}}
}

func TestFinalizeStroke_StarAtOrigin(t *testing.T) {
	t.Parallel()

	s := start(t, newEnv(t))
	ctx := context.Background()

	var changes atomic.Int32

	unsubscribe := s.Subscribe(func(c session.Change) {
		if c.Strokes {
			changes.Add(1)
		}
	})

	st, err := s.FinalizeStroke(ctx, star(), stroke.DefaultStyle())
	require.NoError(t, err)
	require.Equal(t, uint64(0), st.ID)

	origin, err := chunk.Of(0, 0)
	require.NoError(t, err)
	require.Equal(t, origin, st.ChunkID)

	require.Len(t, s.Strokes(), 1)
	require.True(t, s.State().Dirty)
	require.Equal(t, int32(1), changes.Load())

	unsubscribe()

	_, err = s.FinalizeStroke(ctx, zigzag(0), stroke.DefaultStyle())
	require.NoError(t, err)
	require.Equal(t, int32(1), changes.Load())
}

func TestNew_RefusesLeftover(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	require.NoError(t, os.MkdirAll(e.cfg.WorkingDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.cfg.WorkingDir, "junk"), nil, 0o644))

	_, err := session.New(context.Background(), e.cfg)
	require.ErrorIs(t, err, session.ErrLeftover)

	require.NoError(t, session.Discard(e.cfg.WorkingDir))
	require.False(t, session.HasLeftover(e.cfg.WorkingDir))
}

func TestSave_ThenOpen(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	s, err := session.New(ctx, e.cfg)
	require.NoError(t, err)

	_, err = s.FinalizeStroke(ctx, star(), stroke.DefaultStyle())
	require.NoError(t, err)

	_, err = s.Save(ctx, "")
	require.ErrorIs(t, err, session.ErrUnnamed)

	_, err = s.Save(ctx, "bad/name")
	require.ErrorIs(t, err, document.ErrInvalidName)

	path, err := s.Save(ctx, "doodles")
	require.NoError(t, err)
	require.FileExists(t, path)
	require.FileExists(t, e.cfg.Codec.ThumbnailPath("doodles"))

	state := s.State()
	require.False(t, state.Dirty)
	require.Equal(t, "doodles", state.Name)
	require.NotEmpty(t, state.Sheets[0].Thumbnail)

	require.NoError(t, s.Close(ctx))
	require.NoDirExists(t, e.cfg.WorkingDir)

	entries, err := e.lib.List(ctx, library.ByName, library.Ascending)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	reopened, err := session.Open(ctx, e.cfg, "doodles")
	require.NoError(t, err)

	defer reopened.Close(ctx)

	require.Len(t, reopened.Strokes(), 1)
	require.Equal(t, uint64(1), reopened.State().StrokeCounter)

	thumb, err := reopened.Thumbnail(0)
	require.NoError(t, err)
	require.NotEmpty(t, thumb)
}

func TestOpen_Missing(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	_, err := session.Open(context.Background(), e.cfg, "nothing")
	require.ErrorIs(t, err, session.ErrOpenFailed)
	require.ErrorIs(t, err, archive.ErrNotFound)
	require.False(t, session.HasLeftover(e.cfg.WorkingDir))

	_, err = session.Open(context.Background(), e.cfg, "../nothing")
	require.ErrorIs(t, err, document.ErrInvalidName)
	require.False(t, session.HasLeftover(e.cfg.WorkingDir))
}

func TestRecover_LeftoverWorkingDir(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	s, err := session.New(ctx, e.cfg)
	require.NoError(t, err)

	_, err = s.FinalizeStroke(ctx, star(), stroke.DefaultStyle())
	require.NoError(t, err)
	require.NoError(t, s.Sync(ctx))

	// No Close: the working directory stays behind as after a crash.
	require.True(t, session.HasLeftover(e.cfg.WorkingDir))

	recovered, err := session.Recover(ctx, e.cfg)
	require.NoError(t, err)

	defer recovered.Close(ctx)

	require.Len(t, recovered.Strokes(), 1)
	require.True(t, recovered.State().Dirty)
	require.Empty(t, recovered.State().Name)

	next, err := recovered.FinalizeStroke(ctx, zigzag(50), stroke.DefaultStyle())
	require.NoError(t, err)
	require.Equal(t, uint64(1), next.ID)
}

func TestRecover_NothingLeft(t *testing.T) {
	t.Parallel()

	_, err := session.Recover(context.Background(), newEnv(t).cfg)
	require.ErrorIs(t, err, session.ErrNoLeftover)
}

func TestJump_PagesStrokes(t *testing.T) {
	t.Parallel()

	s := start(t, newEnv(t))
	ctx := context.Background()

	_, err := s.FinalizeStroke(ctx, zigzag(0), stroke.DefaultStyle())
	require.NoError(t, err)

	_, err = s.FinalizeStroke(ctx, zigzag(50000), stroke.DefaultStyle())
	require.NoError(t, err)

	require.NoError(t, s.Jump(ctx, chunk.DefaultCamera))
	require.Len(t, s.Strokes(), 1)
	require.Equal(t, uint64(0), s.Strokes()[0].ID)

	require.NoError(t, s.Jump(ctx, chunk.Camera{X: 50000, Zoom: 1}))
	require.Len(t, s.Strokes(), 1)
	require.Equal(t, uint64(1), s.Strokes()[0].ID)
}

func TestPanAndSettle_RunInOrder(t *testing.T) {
	t.Parallel()

	s := start(t, newEnv(t))
	ctx := context.Background()

	_, err := s.FinalizeStroke(ctx, zigzag(20000), stroke.DefaultStyle())
	require.NoError(t, err)
	require.NoError(t, s.Jump(ctx, chunk.DefaultCamera))
	require.Empty(t, s.Strokes())

	for x := float32(0); x <= 20000; x += 2000 {
		require.NoError(t, s.Pan(chunk.Camera{X: x, Zoom: 1}))
	}

	require.NoError(t, s.Settle(chunk.Camera{X: 20000, Zoom: 1}))
	require.NoError(t, s.Sync(ctx))

	require.Len(t, s.Strokes(), 1)
	require.Equal(t, float32(20000), s.Document().Camera().X)
}

func TestInProgressStroke(t *testing.T) {
	t.Parallel()

	s := start(t, newEnv(t))
	ctx := context.Background()

	require.ErrorIs(t, s.AddPoint(1, 1), session.ErrNoStroke)

	_, err := s.EndStroke(ctx)
	require.ErrorIs(t, err, session.ErrNoStroke)

	require.ErrorIs(t, s.BeginStroke(stroke.Style{Color: 200}), stroke.ErrInvalidStyle)

	require.NoError(t, s.BeginStroke(stroke.DefaultStyle()))

	for _, p := range zigzag(0) {
		require.NoError(t, s.AddPoint(p.X, p.Y))
	}

	st, err := s.EndStroke(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), st.ID)

	require.NoError(t, s.BeginStroke(stroke.DefaultStyle()))
	require.NoError(t, s.AddPoint(0, 0))
	require.NoError(t, s.AddPoint(1, 1))

	_, err = s.EndStroke(ctx)
	require.ErrorIs(t, err, stroke.ErrStrokeTooShort)
	require.Len(t, s.Strokes(), 1)
}

func TestSheets_SwitchLoadsOtherSheet(t *testing.T) {
	t.Parallel()

	s := start(t, newEnv(t))
	ctx := context.Background()

	_, err := s.FinalizeStroke(ctx, star(), stroke.DefaultStyle())
	require.NoError(t, err)

	i, err := s.AddSheet(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, i)

	require.NoError(t, s.SwitchSheet(ctx, 1))
	require.Empty(t, s.Strokes())
	require.Equal(t, 1, s.State().ActiveSheet)

	require.NoError(t, s.SwitchSheet(ctx, 0))
	require.Len(t, s.Strokes(), 1)

	require.NoError(t, s.RenameSheet(ctx, 1, "Notes"))
	require.NoError(t, s.ReorderSheets(ctx, 0, 1))
	require.Equal(t, "Notes", s.State().Sheets[0].Name)
	require.Equal(t, 1, s.State().ActiveSheet)

	// Deleting the active sheet activates its neighbour, which is empty.
	require.NoError(t, s.DeleteSheet(ctx, 1))
	require.Len(t, s.State().Sheets, 1)
	require.Empty(t, s.Strokes())

	require.ErrorIs(t, s.DeleteSheet(ctx, 0), document.ErrLastSheet)

	_, err = s.Thumbnail(3)
	require.ErrorIs(t, err, document.ErrSheetIndex)
}

func TestClose_RejectsFurtherWork(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	s, err := session.New(ctx, e.cfg)
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))

	_, err = s.FinalizeStroke(ctx, star(), stroke.DefaultStyle())
	require.ErrorIs(t, err, session.ErrSessionClosed)
	require.ErrorIs(t, s.Pan(chunk.DefaultCamera), session.ErrSessionClosed)

	_, err = s.Save(ctx, "late")
	require.ErrorIs(t, err, session.ErrSessionClosed)
}

func TestCamera_ExtremeInputStaysBounded(t *testing.T) {
	t.Parallel()

	s := start(t, newEnv(t))
	ctx := context.Background()

	require.ErrorIs(t, s.SetViewport(ctx, chunk.Viewport{Width: 1e9, Height: 1e9}), chunk.ErrInvalidViewport)
	require.ErrorIs(t, s.SetViewport(ctx, chunk.Viewport{}), chunk.ErrInvalidViewport)
	require.Equal(t, chunk.Viewport{Width: 200, Height: 200}, s.Viewport())

	require.NoError(t, s.Jump(ctx, chunk.Camera{Zoom: 1e-6}))
	require.Equal(t, float32(chunk.MinZoom), s.Document().Camera().Zoom)

	// 200px at the smallest zoom keeps a 6x6 block resident.
	require.LessOrEqual(t, s.State().LoadedChunks, 36)

	require.NoError(t, s.Settle(chunk.Camera{X: 10, Zoom: 1e6}))
	require.NoError(t, s.Sync(ctx))
	require.Equal(t, float32(chunk.MaxZoom), s.Document().Camera().Zoom)
}

func TestFinalizeStroke_FarFromCameraDoesNotStayLoaded(t *testing.T) {
	t.Parallel()

	s := start(t, newEnv(t))
	ctx := context.Background()

	before := s.State().LoadedChunks

	far, err := s.FinalizeStroke(ctx, zigzag(80000), stroke.DefaultStyle())
	require.NoError(t, err)
	require.Empty(t, s.Strokes())
	require.Equal(t, before, s.State().LoadedChunks)

	// The stroke was written through and pages back in with its chunk.
	require.NoError(t, s.Jump(ctx, chunk.Camera{X: 80000, Zoom: 1}))
	require.Len(t, s.Strokes(), 1)
	require.Equal(t, far.ID, s.Strokes()[0].ID)
}
