// Package scheduler turns a visibility set into a draw list and decides
// which chunks to remesh this frame.
package scheduler

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"voxelrender/internal/cache"
	"voxelrender/internal/culling"
	"voxelrender/internal/gpu"
	"voxelrender/internal/meshing"
	"voxelrender/internal/profiling"
	"voxelrender/internal/world"
)

// Policy selects what is drawn for a chunk whose mesh is out of date.
type Policy uint8

const (
	// PopIn draws nothing until the current mesh is ready.
	PopIn Policy = iota
	// StaleOK keeps drawing the previous mesh until the new one is ready.
	StaleOK
)

// ParsePolicy maps a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "pop-in", "popin":
		return PopIn, nil
	case "stale-ok", "staleok", "":
		return StaleOK, nil
	}
	return 0, fmt.Errorf("scheduler: unknown stale policy %q", s)
}

func (p Policy) String() string {
	if p == StaleOK {
		return "stale-ok"
	}
	return "pop-in"
}

// GenerationSource reports the current generation of loaded chunks.
type GenerationSource interface {
	Generation(c world.ChunkCoord) (uint64, bool)
}

// MeshSource looks up cached meshes of any generation.
type MeshSource interface {
	Lookup(c world.ChunkCoord) (cache.Entry, bool)
}

// Options configures a Scheduler.
type Options struct {
	Policy Policy
	// Budget caps the rebuilds submitted per frame. Zero means no cap.
	Budget int
	// MaxInFlight caps rebuilds submitted but not yet completed. Zero means
	// no cap.
	MaxInFlight int
}

// Plan is the outcome of scheduling one frame.
type Plan struct {
	// Draws lists opaque commands nearest first, then translucent commands
	// furthest first.
	Draws []gpu.DrawCommand
	// Rebuild lists the chunks to remesh now, nearest first.
	Rebuild []world.ChunkCoord

	Visible  int
	Drawn    int // chunks with at least one draw command
	Stale    int // chunks drawn with an outdated mesh
	Missing  int // visible chunks with nothing to draw yet
	Dirty    int // visible chunks whose mesh is out of date
	Deferred int // dirty chunks left for a later frame
}

// Scheduler remembers which rebuilds are in flight between frames. It is
// used from the frame loop only.
type Scheduler struct {
	opts     Options
	inFlight map[world.ChunkCoord]uint64
}

func New(opts Options) *Scheduler {
	return &Scheduler{opts: opts, inFlight: make(map[world.ChunkCoord]uint64)}
}

// SetOptions replaces the options for the following frames.
func (s *Scheduler) SetOptions(opts Options) {
	s.opts = opts
}

// Options returns the current options.
func (s *Scheduler) Options() Options {
	return s.opts
}

// Schedule builds the frame's plan. Chunks in vis that are no longer loaded
// are skipped. A dirty chunk already in flight is not submitted again; once
// its result completes it is rescheduled if still out of date.
func (s *Scheduler) Schedule(vis *culling.VisibilitySet, gens GenerationSource, meshes MeshSource) Plan {
	defer profiling.Track("scheduler.Schedule")()

	p := Plan{Visible: vis.Len()}
	var translucent []gpu.DrawCommand

	slots := -1
	if s.opts.MaxInFlight > 0 {
		slots = max(s.opts.MaxInFlight-len(s.inFlight), 0)
	}
	if s.opts.Budget > 0 && (slots < 0 || s.opts.Budget < slots) {
		slots = s.opts.Budget
	}

	for _, c := range vis.Coords {
		gen, loaded := gens.Generation(c)
		if !loaded {
			continue
		}
		e, cached := meshes.Lookup(c)
		fresh := cached && e.Mesh.Generation == gen

		if !fresh {
			p.Dirty++
			if _, busy := s.inFlight[c]; !busy {
				if slots != 0 {
					p.Rebuild = append(p.Rebuild, c)
					s.inFlight[c] = gen
					slots--
				} else {
					p.Deferred++
				}
			}
		}

		switch {
		case fresh:
		case cached && s.opts.Policy == StaleOK:
			p.Stale++
		default:
			p.Missing++
			continue
		}
		if e.Handle == 0 {
			continue
		}
		p.Drawn++
		m := e.Mesh
		tr := m.Transform()
		if r := m.Opaque; r.Count > 0 {
			p.Draws = append(p.Draws, draw(c, e, meshing.LayerOpaque, r, tr, !fresh))
		}
		if r := m.Translucent; r.Count > 0 {
			translucent = append(translucent, draw(c, e, meshing.LayerTranslucent, r, tr, !fresh))
		}
	}
	for i := len(translucent) - 1; i >= 0; i-- {
		p.Draws = append(p.Draws, translucent[i])
	}

	profiling.Count("scheduler.rebuilds", len(p.Rebuild))
	profiling.Count("scheduler.deferred", p.Deferred)
	return p
}

func draw(c world.ChunkCoord, e cache.Entry, l meshing.Layer, r meshing.IndexRange, tr mgl32.Mat4, stale bool) gpu.DrawCommand {
	return gpu.DrawCommand{
		Coord:      c,
		Handle:     e.Handle,
		Layer:      l,
		IndexFirst: r.First,
		IndexCount: r.Count,
		Transform:  tr,
		Generation: e.Mesh.Generation,
		Stale:      stale,
	}
}

// Complete marks the rebuild of c as finished, successfully or not.
func (s *Scheduler) Complete(c world.ChunkCoord) {
	delete(s.inFlight, c)
}

// InFlight returns the number of submitted rebuilds not yet completed.
func (s *Scheduler) InFlight() int {
	return len(s.inFlight)
}

// IsInFlight reports whether a rebuild of c is outstanding.
func (s *Scheduler) IsInFlight(c world.ChunkCoord) bool {
	_, ok := s.inFlight[c]
	return ok
}
