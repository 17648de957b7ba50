// Package paging decides which chunks of the active sheet stay in memory as
// the camera moves, and serializes the resulting loads and evictions.
package paging

import (
	"log/slog"
	"slices"

	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/document"
	"github.com/serroba/sketchbook/internal/logging"
)

// WorkingSet is the in-memory chunk set the controller pages into.
// *document.Document implements it.
type WorkingSet interface {
	LoadChunks(ids []chunk.ID) document.LoadReport
	EvictChunks(ids []chunk.ID) document.EvictReport
	EvictAll() document.EvictReport
	LoadedChunkIDs() []chunk.ID
}

// ControllerConfig holds configuration for a Controller.
type ControllerConfig struct {
	WorkingSet WorkingSet
	Viewport   chunk.Viewport
	Margin     float64
	Logger     *slog.Logger
}

// Result is a diff together with what actually happened when it was applied.
type Result struct {
	Diff

	Loaded       []chunk.ID
	Evicted      []chunk.ID
	FailedLoads  []chunk.ID
	FailedEvicts []chunk.ID
}

// Changed reports whether the working set changed.
func (r Result) Changed() bool {
	return len(r.Loaded) > 0 || len(r.Evicted) > 0
}

// Controller tracks the visible chunk rectangle of the active sheet.
// It is not safe for concurrent use; run it on a Queue.
type Controller struct {
	ws     WorkingSet
	logger *slog.Logger

	viewport chunk.Viewport
	margin   float64
	bounds   chunk.Bounds
	synced   bool

	// Chunks a previous pass could not page. Retried while still relevant.
	pendingLoad  map[chunk.ID]struct{}
	pendingEvict map[chunk.ID]struct{}
}

// NewController creates a controller. It starts unsynced, so the first
// camera update loads the full visible rectangle.
func NewController(cfg ControllerConfig) *Controller {
	margin := cfg.Margin
	if margin <= 0 {
		margin = chunk.DefaultMargin
	}

	return &Controller{
		ws:           cfg.WorkingSet,
		logger:       logging.OrNop(cfg.Logger),
		viewport:     cfg.Viewport,
		margin:       margin,
		pendingLoad:  make(map[chunk.ID]struct{}),
		pendingEvict: make(map[chunk.ID]struct{}),
	}
}

// Bounds returns the last committed rectangle.
func (c *Controller) Bounds() chunk.Bounds {
	return c.bounds
}

// Synced reports whether the bounds reflect the working set.
func (c *Controller) Synced() bool {
	return c.synced
}

// Viewport returns the renderer size used for bounds.
func (c *Controller) Viewport() chunk.Viewport {
	return c.viewport
}

// SetViewport records a new renderer size. The next update recomputes the
// bounds with it.
func (c *Controller) SetViewport(vp chunk.Viewport) {
	c.viewport = vp
}

// Invalidate forgets the committed bounds. The next update does a full resync.
func (c *Controller) Invalidate() {
	c.synced = false
}

// Pan applies an incremental camera move.
func (c *Controller) Pan(cam chunk.Camera) Result {
	return c.update(cam)
}

// Settle applies the camera pose at the end of a gesture.
func (c *Controller) Settle(cam chunk.Camera) Result {
	return c.update(cam)
}

// Jump applies a discontinuous camera change: a sheet switch, an explicit
// camera set or a zoom reset. It always does a full resync.
func (c *Controller) Jump(cam chunk.Camera) Result {
	c.Invalidate()

	return c.update(cam)
}

// Reset evicts the whole working set and invalidates the bounds.
func (c *Controller) Reset() Result {
	report := c.ws.EvictAll()

	c.synced = false
	c.bounds = chunk.Bounds{}
	clear(c.pendingLoad)
	clear(c.pendingEvict)

	for _, id := range report.Failed {
		c.pendingEvict[id] = struct{}{}
	}

	return Result{
		Diff:         Diff{Full: true},
		Evicted:      report.Evicted,
		FailedEvicts: report.Failed,
	}
}

func (c *Controller) update(cam chunk.Camera) Result {
	next := chunk.VisibleBounds(cam, c.viewport, c.margin)

	var res Result

	if c.synced {
		res = c.apply(EdgeDiff(c.bounds, next))
	} else {
		res = c.apply(c.fullDiff(next))
	}

	res.Diff.Bounds = next
	c.bounds = next
	c.synced = true

	res = c.retry(res)

	if res.Changed() || len(res.FailedLoads) > 0 || len(res.FailedEvicts) > 0 {
		c.logger.Debug("paged",
			"full", res.Full,
			"bounds", next,
			"loaded", len(res.Loaded),
			"evicted", len(res.Evicted),
			"failedLoads", len(res.FailedLoads),
			"failedEvicts", len(res.FailedEvicts),
		)
	}

	return res
}

// fullDiff evicts whatever is loaded outside next and loads all of next.
func (c *Controller) fullDiff(next chunk.Bounds) Diff {
	d := Diff{Full: true, Bounds: next, Load: next.IDs()}

	for _, id := range c.ws.LoadedChunkIDs() {
		if !next.ContainsID(id) {
			d.Evict = append(d.Evict, id)
		}
	}

	return d
}

func (c *Controller) apply(d Diff) Result {
	res := Result{Diff: d}

	if d.Full {
		res.record(c.ws.EvictChunks(d.Evict), c.ws.LoadChunks(d.Load))

		return res
	}

	for _, e := range d.Edges {
		res.record(c.ws.EvictChunks(e.Evict), c.ws.LoadChunks(e.Load))
	}

	return res
}

func (r *Result) record(ev document.EvictReport, ld document.LoadReport) {
	r.Evicted = append(r.Evicted, ev.Evicted...)
	r.FailedEvicts = append(r.FailedEvicts, ev.Failed...)
	r.Loaded = append(r.Loaded, ld.Loaded...)
	r.FailedLoads = append(r.FailedLoads, ld.Failed...)
}

// retry pages chunks that failed on earlier passes and are still on the
// wrong side of the committed bounds, then remembers this pass's failures.
func (c *Controller) retry(res Result) Result {
	var load, evict []chunk.ID

	for id := range c.pendingLoad {
		if c.bounds.ContainsID(id) && !slices.Contains(res.FailedLoads, id) {
			load = append(load, id)
		}
	}

	for id := range c.pendingEvict {
		if !c.bounds.ContainsID(id) && !slices.Contains(res.FailedEvicts, id) {
			evict = append(evict, id)
		}
	}

	clear(c.pendingLoad)
	clear(c.pendingEvict)

	if len(load) > 0 || len(evict) > 0 {
		slices.Sort(load)
		slices.Sort(evict)
		res.record(c.ws.EvictChunks(evict), c.ws.LoadChunks(load))
	}

	for _, id := range res.FailedLoads {
		c.pendingLoad[id] = struct{}{}
	}

	for _, id := range res.FailedEvicts {
		c.pendingEvict[id] = struct{}{}
	}

	return res
}

// Release evicts those of ids that lie outside the committed bounds, such as
// the chunk of a stroke finalized far from the camera. Chunks that cannot be
// evicted are retried on later passes. Before the first sync it does nothing.
func (c *Controller) Release(ids []chunk.ID) Result {
	var res Result

	if !c.synced {
		return res
	}

	var evict []chunk.ID

	for _, id := range ids {
		if !c.bounds.ContainsID(id) {
			evict = append(evict, id)
		}
	}

	if len(evict) == 0 {
		return res
	}

	res.record(c.ws.EvictChunks(evict), document.LoadReport{})

	for _, id := range res.FailedEvicts {
		c.pendingEvict[id] = struct{}{}
	}

	return res
}

// Pending returns the chunks waiting for a retry, sorted.
func (c *Controller) Pending() (load, evict []chunk.ID) {
	for id := range c.pendingLoad {
		load = append(load, id)
	}

	for id := range c.pendingEvict {
		evict = append(evict, id)
	}

	slices.Sort(load)
	slices.Sort(evict)

	return load, evict
}
