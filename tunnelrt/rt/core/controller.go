package core

import (
	"errors"
	"fmt"

	"github.com/gekko3d/tunnel"
	"github.com/gekko3d/tunnel/tunnelrt/rt/lattice"
)

type State int

const (
	StateNeedsRebuild State = iota
	StateStable
)

func (s State) String() string {
	if s == StateStable {
		return "stable"
	}
	return "needs-rebuild"
}

// Drawable is what the host draw step consumes: the lattice mesh and one
// program per submesh (surface A, surface B, line).
type Drawable struct {
	Mesh      Mesh
	Materials []Program
}

type Stats struct {
	Frames          int
	Rebuilds        int
	Dispatches      int
	SkippedFrames   int
	StaleRecoveries int
}

// Controller drives the tunnel pipeline. It is not safe for concurrent use:
// NotifyConfigChanged, Tick and DebugDraw all belong to the frame thread.
type Controller struct {
	dev     Device
	params  *tunnel.Params
	log     tunnel.Logger
	pool    *BufferPool
	kernels *KernelSet
	overlay Overlay

	mesh      Mesh
	materials []Program

	dirty bool
	stats Stats
}

func NewController(dev Device, params *tunnel.Params, log tunnel.Logger) *Controller {
	log = tunnel.OrNop(log)
	return &Controller{
		dev:     dev,
		params:  params,
		log:     log,
		pool:    NewBufferPool(dev, log),
		kernels: NewKernelSet(dev, log),
		overlay: Overlay{TileSize: OverlayTileSize},
		dirty:   true,
	}
}

// NotifyConfigChanged requests a full rebuild on the next tick. Repeated
// calls before that tick still produce a single rebuild.
func (c *Controller) NotifyConfigChanged() {
	c.dirty = true
}

func (c *Controller) State() State {
	if c.dirty {
		return StateNeedsRebuild
	}
	return StateStable
}

// Tick runs one frame: rebuild if needed, upload parameters, then dispatch the
// position pass followed by the two normal passes. A failed rebuild skips the
// dispatch and leaves the controller in StateNeedsRebuild.
func (c *Controller) Tick() error {
	c.stats.Frames++

	if !c.dirty {
		if err := c.checkResources(); err != nil {
			c.log.Warnf("%v, rebuilding", err)
			c.stats.StaleRecoveries++
			c.dirty = true
		}
	}

	if c.dirty {
		if err := c.rebuild(); err != nil {
			c.stats.SkippedFrames++
			return err
		}
	}

	c.upload()

	if err := c.dispatch(); err != nil {
		c.stats.SkippedFrames++
		if errors.Is(err, ErrStaleResource) {
			c.dirty = true
		}
		return err
	}
	return nil
}

func (c *Controller) checkResources() error {
	bufs := c.pool.Current()
	switch {
	case !bufs.Alive():
		return fmt.Errorf("buffers: %w", ErrStaleResource)
	case !c.kernels.Alive():
		return fmt.Errorf("programs: %w", ErrStaleResource)
	case !c.kernels.BoundTo(bufs):
		return fmt.Errorf("program bindings: %w", ErrStaleResource)
	case !alive(c.mesh):
		return fmt.Errorf("mesh: %w", ErrStaleResource)
	}
	return nil
}

func (c *Controller) rebuild() error {
	c.params.Sanitize()
	slices, stacks := c.params.Slices, c.params.Stacks

	bufs, err := c.pool.Reallocate(slices, stacks)
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	if err := c.kernels.Ensure(); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	c.kernels.Bind(bufs)

	if c.mesh != nil {
		c.mesh.Release()
		c.mesh = nil
	}
	c.materials = nil
	mesh, err := c.dev.CreateMesh(lattice.Build(slices, stacks))
	if err != nil {
		return fmt.Errorf("rebuild: mesh %dx%d: %w: %w", slices, stacks, ErrResourceAllocation, err)
	}
	c.mesh = mesh
	c.materials = c.kernels.Materials()

	c.dirty = false
	c.stats.Rebuilds++
	w, h := bufs.Size()
	c.log.Infof("rebuilt tunnel: %d slices x %d stacks, buffers %dx%d (generation %d)", slices, stacks, w, h, bufs.Generation)
	return nil
}

func (c *Controller) upload() {
	p := c.params
	con := c.kernels.Construct()
	con.SetVector(ParamSize, p.SizeVector())
	con.SetVector(ParamOffsetRepeat, p.OffsetRepeatVector())
	con.SetVector(ParamDensity, p.DensityVector())
	con.SetVector(ParamDisplace, p.DisplaceVector())

	c.kernels.Program(RoleSurfaceA).SetVector(ParamColor, p.SurfaceColor)
	c.kernels.Program(RoleSurfaceB).SetVector(ParamColor, p.SurfaceColor)
	c.kernels.Program(RoleLine).SetVector(ParamColor, p.LineColor)
}

func (c *Controller) dispatch() error {
	b := c.pool.Current()
	con := c.kernels.Construct()

	if err := c.dev.Blit(nil, b.Position, con, PassPosition); err != nil {
		return fmt.Errorf("position pass: %w", err)
	}
	if err := c.dev.Blit(b.Position, b.NormalA, con, PassNormalA); err != nil {
		return fmt.Errorf("normal-a pass: %w", err)
	}
	if err := c.dev.Blit(b.Position, b.NormalB, con, PassNormalB); err != nil {
		return fmt.Errorf("normal-b pass: %w", err)
	}
	c.stats.Dispatches += 3
	c.log.Debugf("frame %d: dispatched construct passes", c.stats.Frames)
	return nil
}

// DebugDraw draws the buffer tiles when the debug flag is set. It never
// changes pipeline state.
func (c *Controller) DebugDraw() error {
	if !c.params.Debug {
		return nil
	}
	_, err := c.overlay.Draw(c.dev, c.kernels.Debug(), c.pool.Current().All()...)
	return err
}

func (c *Controller) Drawable() Drawable {
	return Drawable{
		Mesh:      c.mesh,
		Materials: append([]Program(nil), c.materials...),
	}
}

func (c *Controller) Buffers() *Buffers {
	return c.pool.Current()
}

func (c *Controller) Kernels() *KernelSet {
	return c.kernels
}

func (c *Controller) Stats() Stats {
	return c.stats
}

// Release frees every resource the controller owns. The next Tick rebuilds.
func (c *Controller) Release() {
	c.pool.Release()
	c.kernels.Release()
	if c.mesh != nil {
		c.mesh.Release()
		c.mesh = nil
	}
	c.materials = nil
	c.dirty = true
}
