// Package session runs one open sketchbook. It owns the working directory,
// the document, the pager and the paging queue, and funnels every mutation
// through that queue so the chunk files have a single writer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/serroba/sketchbook/internal/archive"
	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/document"
	"github.com/serroba/sketchbook/internal/library"
	"github.com/serroba/sketchbook/internal/logging"
	"github.com/serroba/sketchbook/internal/paging"
	"github.com/serroba/sketchbook/internal/storage"
	"github.com/serroba/sketchbook/internal/stroke"
	"github.com/serroba/sketchbook/internal/thumbnail"
)

// Common errors.
var (
	ErrSessionClosed = errors.New("session is closed")
	ErrOpenFailed    = errors.New("could not open sketchbook")
	ErrLeftover      = errors.New("working directory left by an unclean exit")
	ErrNoLeftover    = errors.New("no working directory to recover")
	ErrUnnamed       = errors.New("sketchbook has no name")
	ErrNoStroke      = errors.New("no stroke in progress")
)

// Change tells listeners what a queued operation changed.
type Change struct {
	// State is set when the name, sheets, dirty flag or counter changed.
	State bool
	// Strokes is set when the loaded stroke list changed.
	Strokes bool
}

// Config holds configuration for a session.
type Config struct {
	WorkingDir string
	Codec      *archive.Codec
	// Library and Renderer are optional. A nil renderer uses the defaults.
	Library         *library.Library
	Renderer        *thumbnail.Renderer
	Viewport        chunk.Viewport
	Margin          float64
	ReadConcurrency int
	Logger          *slog.Logger
	Now             func() time.Time
}

// Session is one open sketchbook.
type Session struct {
	workDir  string
	codec    *archive.Codec
	library  *library.Library
	renderer *thumbnail.Renderer
	logger   *slog.Logger
	now      func() time.Time

	queue *paging.Queue
	doc   *document.Document
	pager *paging.Controller

	mu       sync.Mutex
	viewport chunk.Viewport
	builder  *stroke.Builder
	closed   bool

	listenMu  sync.Mutex
	listeners map[int]func(Change)
	nextID    int
}

// HasLeftover reports whether dir holds a working directory from a session
// that did not close cleanly.
func HasLeftover(dir string) bool {
	entries, err := os.ReadDir(dir)

	return err == nil && len(entries) > 0
}

// Discard removes a leftover working directory.
func Discard(dir string) error {
	return os.RemoveAll(dir)
}

// New starts a session on a fresh, unnamed document.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}

	if HasLeftover(cfg.WorkingDir) {
		return nil, ErrLeftover
	}

	store, err := storage.NewFileStore(storage.FileStoreConfig{Dir: cfg.WorkingDir, Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}

	doc, err := document.New(docConfig(cfg, store))
	if err != nil {
		_ = os.RemoveAll(cfg.WorkingDir)

		return nil, fmt.Errorf("create document: %w", err)
	}

	return start(ctx, cfg, doc)
}

// Open starts a session on the named archive from the library.
func Open(ctx context.Context, cfg Config, name string) (*Session, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}

	if err := document.ValidateName(name); err != nil {
		return nil, err
	}

	if HasLeftover(cfg.WorkingDir) {
		return nil, ErrLeftover
	}

	if err := cfg.Codec.Open(name, cfg.WorkingDir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	store, err := storage.NewFileStore(storage.FileStoreConfig{Dir: cfg.WorkingDir, Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}

	doc, err := document.Load(docConfig(cfg, store))
	if err != nil {
		_ = os.RemoveAll(cfg.WorkingDir)

		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	// The archive may have been renamed in the library since it was saved.
	if doc.Name() != name {
		if err := doc.SetName(name); err != nil {
			_ = os.RemoveAll(cfg.WorkingDir)

			return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
		}
	}

	return start(ctx, cfg, doc)
}

// Recover starts a session on the working directory an unclean exit left
// behind. The recovered document is unnamed and dirty.
func Recover(ctx context.Context, cfg Config) (*Session, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}

	if !HasLeftover(cfg.WorkingDir) {
		return nil, ErrNoLeftover
	}

	store, err := storage.NewFileStore(storage.FileStoreConfig{Dir: cfg.WorkingDir, Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}

	doc, err := document.Recover(docConfig(cfg, store))
	if err != nil {
		return nil, fmt.Errorf("recover: %w", err)
	}

	// Saving under the old name must be an explicit choice.
	if err := doc.SetName(""); err != nil {
		return nil, fmt.Errorf("recover: %w", err)
	}

	return start(ctx, cfg, doc)
}

func checkConfig(cfg Config) error {
	if cfg.WorkingDir == "" {
		return errors.New("session: working directory is required")
	}

	if cfg.Codec == nil {
		return errors.New("session: archive codec is required")
	}

	return nil
}

func docConfig(cfg Config, store storage.Store) document.Config {
	return document.Config{
		Store:           store,
		Logger:          cfg.Logger,
		Now:             cfg.Now,
		ReadConcurrency: cfg.ReadConcurrency,
	}
}

func start(ctx context.Context, cfg Config, doc *document.Document) (*Session, error) {
	logger := logging.OrNop(cfg.Logger)

	renderer := cfg.Renderer
	if renderer == nil {
		renderer = thumbnail.NewRenderer(thumbnail.Config{})
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	viewport := cfg.Viewport.Clamped()

	s := &Session{
		workDir:   cfg.WorkingDir,
		codec:     cfg.Codec,
		library:   cfg.Library,
		renderer:  renderer,
		logger:    logger,
		now:       now,
		queue:     paging.NewQueue(logger),
		doc:       doc,
		viewport:  viewport,
		listeners: make(map[int]func(Change)),
	}

	s.pager = paging.NewController(paging.ControllerConfig{
		WorkingSet: doc,
		Viewport:   viewport,
		Margin:     cfg.Margin,
		Logger:     logger,
	})

	if err := s.Jump(ctx, doc.Camera()); err != nil {
		s.queue.Close()

		return nil, err
	}

	return s, nil
}

// Subscribe registers fn to be called on the queue goroutine after each
// change. The returned function removes it.
func (s *Session) Subscribe(fn func(Change)) func() {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.listenMu.Lock()
		defer s.listenMu.Unlock()

		delete(s.listeners, id)
	}
}

func (s *Session) notify(c Change) {
	if !c.State && !c.Strokes {
		return
	}

	s.listenMu.Lock()

	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (s *Session) applyPaging(res paging.Result) {
	if len(res.FailedLoads) > 0 || len(res.FailedEvicts) > 0 {
		s.logger.Warn("paging incomplete, will retry",
			"failed_loads", len(res.FailedLoads), "failed_evicts", len(res.FailedEvicts))
	}

	s.notify(Change{Strokes: res.Changed()})
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	return nil
}

// SetViewport changes the renderer size and pages to the new bounds.
// Sizes failing chunk.Viewport.Validate are rejected.
func (s *Session) SetViewport(ctx context.Context, vp chunk.Viewport) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	if err := vp.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.viewport = vp
	s.mu.Unlock()

	return s.queue.Do(ctx, func() error {
		s.pager.SetViewport(vp)
		s.applyPaging(s.pager.Settle(s.doc.Camera()))

		return nil
	})
}

// Viewport returns the current renderer size.
func (s *Session) Viewport() chunk.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.viewport
}

// Pan records an in-gesture camera move. Paging runs in the background and
// is dropped if a jump or sheet switch supersedes it.
func (s *Session) Pan(cam chunk.Camera) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	cam = cam.Clamped()

	return s.queue.Go(func() {
		s.doc.SetCamera(cam)
		s.applyPaging(s.pager.Pan(cam))
	})
}

// Settle records the camera at the end of a gesture.
func (s *Session) Settle(cam chunk.Camera) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	cam = cam.Clamped()

	return s.queue.Go(func() {
		s.doc.SetCamera(cam)
		s.applyPaging(s.pager.Settle(cam))
	})
}

// Jump moves the camera discontinuously and waits for the full resync.
// Queued pans are discarded.
func (s *Session) Jump(ctx context.Context, cam chunk.Camera) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	cam = cam.Clamped()

	s.queue.Supersede()

	return s.queue.Do(ctx, func() error {
		s.doc.SetCamera(cam)
		s.applyPaging(s.pager.Jump(cam))

		return nil
	})
}

// Sync waits until every operation submitted so far has run.
func (s *Session) Sync(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.queue.Barrier(ctx)
}

// FinalizeStroke persists a complete stroke on the active sheet.
func (s *Session) FinalizeStroke(ctx context.Context, points []stroke.Point, style stroke.Style) (*stroke.Stroke, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var out *stroke.Stroke

	err := s.queue.Do(ctx, func() error {
		st, err := s.doc.FinalizeStroke(points, style)
		if err != nil {
			return err
		}

		// A stroke away from the camera must not pin its chunk.
		if res := s.pager.Release([]chunk.ID{st.ChunkID}); len(res.FailedEvicts) > 0 {
			s.logger.Warn("off-screen chunk kept loaded, will retry", "chunk", st.ChunkID)
		}

		out = st
		s.notify(Change{State: true, Strokes: true})

		return nil
	})

	return out, err
}

// BeginStroke starts an in-progress stroke, replacing any unfinished one.
func (s *Session) BeginStroke(style stroke.Style) error {
	if err := style.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.builder = stroke.NewBuilder(style)

	return nil
}

// AddPoint appends a point to the in-progress stroke.
func (s *Session) AddPoint(x, y float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.builder == nil {
		return ErrNoStroke
	}

	s.builder.Add(x, y)

	return nil
}

// EndStroke finalizes the in-progress stroke.
func (s *Session) EndStroke(ctx context.Context) (*stroke.Stroke, error) {
	s.mu.Lock()
	b := s.builder
	s.builder = nil
	s.mu.Unlock()

	if b == nil {
		return nil, ErrNoStroke
	}

	return s.FinalizeStroke(ctx, b.Points(), b.Style())
}

// CancelStroke drops the in-progress stroke.
func (s *Session) CancelStroke() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.builder = nil
}

// Strokes returns the loaded strokes in draw order.
func (s *Session) Strokes() []*stroke.Stroke {
	return s.doc.LoadedStrokes()
}

// State returns a summary of the document.
func (s *Session) State() document.State {
	return s.doc.State()
}

// Document returns the underlying document. Mutate it only through the session.
func (s *Session) Document() *document.Document {
	return s.doc
}

// WorkingDir returns the working directory.
func (s *Session) WorkingDir() string {
	return s.workDir
}

// Close waits for queued work, stops the queue and removes the working
// directory. Unsaved changes are lost; save first.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return nil
	}

	s.closed = true
	s.mu.Unlock()

	if err := s.queue.Barrier(ctx); err != nil {
		s.logger.Warn("close before queue drained", "error", err)
	}

	s.queue.Close()

	if err := os.RemoveAll(s.workDir); err != nil {
		return fmt.Errorf("remove working directory: %w", err)
	}

	s.logger.Info("session closed", "name", s.doc.Name())

	return nil
}
