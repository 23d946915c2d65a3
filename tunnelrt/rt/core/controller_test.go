package core

import (
	"testing"

	"github.com/gekko3d/tunnel"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(p *tunnel.Params) (*Controller, *fakeDevice) {
	dev := newFakeDevice()
	return NewController(dev, p, nil), dev
}

func tick(t *testing.T, c *Controller, dev *fakeDevice) {
	t.Helper()
	dev.frame++
	require.NoError(t, c.Tick())
}

func TestDefaultsFirstTickRebuildsThenSteady(t *testing.T) {
	p := tunnel.DefaultParams()
	c, dev := newTestController(&p)
	assert.Equal(t, StateNeedsRebuild, c.State())

	tick(t, c, dev)
	assert.Equal(t, StateStable, c.State())
	assert.Equal(t, 1, c.Stats().Rebuilds)
	require.Len(t, dev.liveTargets(), 3)
	for _, tg := range dev.liveTargets() {
		assert.Equal(t, 80, tg.Width())
		assert.Equal(t, 40, tg.Height())
		assert.Equal(t, FormatRGBA32Float, tg.desc.Format)
		assert.Equal(t, FilterPoint, tg.desc.Filter)
		assert.Equal(t, WrapRepeat, tg.desc.Wrap)
	}

	dev.blits = nil
	tick(t, c, dev)
	assert.Equal(t, 1, c.Stats().Rebuilds, "steady frame must not rebuild")
	require.Len(t, dev.blits, 3)

	b := c.Buffers()
	assert.Equal(t, PassPosition, dev.blits[0].pass)
	assert.Nil(t, dev.blits[0].src)
	assert.Equal(t, b.Position, dev.blits[0].dst)

	assert.Equal(t, PassNormalA, dev.blits[1].pass)
	assert.Equal(t, b.Position, dev.blits[1].src)
	assert.Equal(t, b.NormalA, dev.blits[1].dst)

	assert.Equal(t, PassNormalB, dev.blits[2].pass)
	assert.Equal(t, b.Position, dev.blits[2].src)
	assert.Equal(t, b.NormalB, dev.blits[2].dst)

	for i := 0; i < 5; i++ {
		tick(t, c, dev)
	}
	assert.Equal(t, 1, c.Stats().Rebuilds)
	assert.Equal(t, 7*3, c.Stats().Dispatches)
}

func TestNormalsReflectSameFramePositions(t *testing.T) {
	p := tunnel.DefaultParams()
	c, dev := newTestController(&p)

	for i := 0; i < 4; i++ {
		tick(t, c, dev)
		b := c.Buffers()
		assert.Equal(t, dev.frame, b.Position.(*fakeTarget).stamp)
		assert.Equal(t, dev.frame, b.NormalA.(*fakeTarget).stamp)
		assert.Equal(t, dev.frame, b.NormalB.(*fakeTarget).stamp)
	}
}

func TestNotifyIsAFlagNotACounter(t *testing.T) {
	p := tunnel.DefaultParams()
	c, dev := newTestController(&p)
	tick(t, c, dev)

	c.NotifyConfigChanged()
	c.NotifyConfigChanged()
	assert.Equal(t, StateNeedsRebuild, c.State())

	tick(t, c, dev)
	tick(t, c, dev)
	assert.Equal(t, 2, c.Stats().Rebuilds)
}

func TestSlicesBelowRangeClampOnRebuild(t *testing.T) {
	p := tunnel.DefaultParams()
	c, dev := newTestController(&p)
	tick(t, c, dev)

	p.Slices = 4
	c.NotifyConfigChanged()
	tick(t, c, dev)

	assert.Equal(t, 8, p.Slices)
	w, h := c.Buffers().Size()
	assert.Equal(t, 16, w)
	assert.Equal(t, 40, h)

	mesh := c.Drawable().Mesh.(*fakeMesh)
	assert.Equal(t, 8, mesh.lat.Slices)
	assert.Equal(t, 40, mesh.lat.Stacks)
	assert.Equal(t, w*h, mesh.VertexCount())
}

func TestTopologyEditWithoutNotifyIsDeferred(t *testing.T) {
	p := tunnel.DefaultParams()
	c, dev := newTestController(&p)
	tick(t, c, dev)

	p.Stacks = 20
	tick(t, c, dev)
	_, h := c.Buffers().Size()
	assert.Equal(t, 40, h, "topology only changes after notification")

	c.NotifyConfigChanged()
	tick(t, c, dev)
	_, h = c.Buffers().Size()
	assert.Equal(t, 20, h)
}

func TestRebuildReleasesPreviousGeneration(t *testing.T) {
	p := tunnel.DefaultParams()
	c, dev := newTestController(&p)
	tick(t, c, dev)
	first := c.Buffers()
	firstMesh := c.Drawable().Mesh.(*fakeMesh)

	p.Slices = 20
	c.NotifyConfigChanged()
	tick(t, c, dev)
	second := c.Buffers()

	for _, tg := range first.All() {
		assert.False(t, tg.Alive(), "old generation must be released")
	}
	assert.True(t, firstMesh.released)
	assert.Len(t, dev.liveTargets(), 3)
	assert.Equal(t, 1, dev.liveMeshes())
	assert.Greater(t, second.Generation, first.Generation)

	// Every binding points at the new generation only.
	for _, rec := range c.Kernels().Bindings() {
		assert.Equal(t, second.Generation, rec.Generation)
	}
	for _, sp := range dev.programsOf(ProgramSurface) {
		assert.Equal(t, second.Position, sp.textures[SlotPosition])
	}
	assert.True(t, c.Kernels().BoundTo(second))
	assert.False(t, c.Kernels().BoundTo(first))
}

func TestRebuildReusesPrograms(t *testing.T) {
	p := tunnel.DefaultParams()
	c, dev := newTestController(&p)
	tick(t, c, dev)
	require.Len(t, dev.programs, 5)

	for i := 0; i < 3; i++ {
		c.NotifyConfigChanged()
		tick(t, c, dev)
	}
	assert.Len(t, dev.programs, 5, "programs survive rebuilds")
}

func TestMaterialOrderAndBindings(t *testing.T) {
	p := tunnel.DefaultParams()
	c, dev := newTestController(&p)
	tick(t, c, dev)

	d := c.Drawable()
	require.Len(t, d.Materials, 3)
	assert.Equal(t, ProgramSurface, d.Materials[0].Kind())
	assert.Equal(t, ProgramSurface, d.Materials[1].Kind())
	assert.Equal(t, ProgramLine, d.Materials[2].Kind())
	assert.NotSame(t, d.Materials[0], d.Materials[1])

	b := c.Buffers()
	assert.Equal(t, b.NormalA, d.Materials[0].Texture(SlotNormal))
	assert.Equal(t, b.NormalB, d.Materials[1].Texture(SlotNormal))
	assert.Nil(t, d.Materials[2].Texture(SlotNormal))
	for _, m := range d.Materials {
		assert.Equal(t, b.Position, m.Texture(SlotPosition))
	}
}

func TestParameterUpload(t *testing.T) {
	p := tunnel.DefaultParams()
	p.SurfaceColor = mgl32.Vec4{1, 0, 0, 1}
	p.LineColor = mgl32.Vec4{0, 1, 0, 1}
	c, dev := newTestController(&p)
	tick(t, c, dev)

	con := dev.programsOf(ProgramConstruct)[0]
	assert.Equal(t, mgl32.Vec4{5, 10, 0, 0}, con.vectors[ParamSize])
	assert.Equal(t, mgl32.Vec4{0, 1, 1, 100}, con.vectors[ParamOffsetRepeat])
	assert.Equal(t, mgl32.Vec4{1, 1, 0, 0}, con.vectors[ParamDensity])
	assert.Equal(t, mgl32.Vec4{1, 1, 1, 0}, con.vectors[ParamDisplace])

	// Non-topology parameters are picked up the next frame without a rebuild.
	p.Offset = 3
	p.Bump = 2
	tick(t, c, dev)
	assert.Equal(t, mgl32.Vec4{0, 3, 1, 100}, con.vectors[ParamOffsetRepeat])
	assert.Equal(t, mgl32.Vec4{2, 1, 1, 0}, con.vectors[ParamDisplace])
	assert.Equal(t, 1, c.Stats().Rebuilds)

	d := c.Drawable()
	assert.Equal(t, p.SurfaceColor, d.Materials[0].(*fakeProgram).vectors[ParamColor])
	assert.Equal(t, p.SurfaceColor, d.Materials[1].(*fakeProgram).vectors[ParamColor])
	assert.Equal(t, p.LineColor, d.Materials[2].(*fakeProgram).vectors[ParamColor])
}

func TestAllocationFailureIsSurfacedAndRetried(t *testing.T) {
	p := tunnel.DefaultParams()
	c, dev := newTestController(&p)
	dev.failTargetAt = 2

	dev.frame++
	err := c.Tick()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResourceAllocation)
	assert.ErrorIs(t, err, errFakeOOM)
	assert.Equal(t, StateNeedsRebuild, c.State())
	assert.Empty(t, dev.blits, "no dispatch against partial state")
	assert.Empty(t, dev.liveTargets(), "partial allocation must be released")
	assert.Equal(t, 1, c.Stats().SkippedFrames)

	tick(t, c, dev)
	assert.Equal(t, StateStable, c.State())
	assert.Len(t, dev.blits, 3)
}

func TestMissingProgramIsFatal(t *testing.T) {
	p := tunnel.DefaultParams()
	c, dev := newTestController(&p)
	dev.failKinds[ProgramLine] = true

	err := c.Tick()
	assert.ErrorIs(t, err, ErrResourceAllocation)
	assert.Equal(t, StateNeedsRebuild, c.State())
	assert.Empty(t, dev.blits)
}

func TestMissingDebugProgramOnlyDisablesOverlay(t *testing.T) {
	p := tunnel.DefaultParams()
	p.Debug = true
	c, dev := newTestController(&p)
	dev.failKinds[ProgramDebug] = true

	tick(t, c, dev)
	assert.Equal(t, StateStable, c.State())
	require.NoError(t, c.DebugDraw())
	assert.Empty(t, dev.tiles)
}

func TestMeshFailureKeepsNeedsRebuild(t *testing.T) {
	p := tunnel.DefaultParams()
	c, dev := newTestController(&p)
	dev.failMesh = true

	assert.ErrorIs(t, c.Tick(), ErrResourceAllocation)
	assert.Equal(t, StateNeedsRebuild, c.State())
	assert.Nil(t, c.Drawable().Mesh)

	dev.failMesh = false
	tick(t, c, dev)
	assert.Equal(t, 1, dev.liveMeshes())
}

func TestExternallyReleasedResourcesTriggerRebuild(t *testing.T) {
	cases := map[string]func(c *Controller){
		"buffer": func(c *Controller) { c.Buffers().NormalB.Release() },
		"program": func(c *Controller) {
			c.Kernels().Construct().Release()
		},
		"mesh": func(c *Controller) { c.Drawable().Mesh.Release() },
		"binding": func(c *Controller) {
			c.Kernels().Program(RoleSurfaceB).SetTexture(SlotNormal, c.Buffers().NormalA)
		},
	}
	for name, destroy := range cases {
		t.Run(name, func(t *testing.T) {
			p := tunnel.DefaultParams()
			c, dev := newTestController(&p)
			tick(t, c, dev)

			destroy(c)
			dev.blits = nil
			tick(t, c, dev)

			assert.Equal(t, 2, c.Stats().Rebuilds)
			assert.Equal(t, 1, c.Stats().StaleRecoveries)
			assert.Equal(t, StateStable, c.State())
			require.Len(t, dev.blits, 3)
			for _, op := range dev.blits {
				assert.False(t, op.dst.released)
			}
		})
	}
}

func TestDebugDrawTiles(t *testing.T) {
	p := tunnel.DefaultParams()
	c, dev := newTestController(&p)
	tick(t, c, dev)

	require.NoError(t, c.DebugDraw())
	assert.Empty(t, dev.tiles, "debug flag off")

	p.Debug = true
	require.NoError(t, c.DebugDraw())
	assert.Equal(t, []Rect{
		{X: 0, Y: 0, W: 64, H: 64},
		{X: 64, Y: 0, W: 64, H: 64},
		{X: 128, Y: 0, W: 64, H: 64},
	}, dev.tiles)
	assert.Equal(t, 1, c.Stats().Rebuilds, "overlay must not touch pipeline state")
	assert.Equal(t, StateStable, c.State())
}

func TestDebugDrawBeforeFirstTick(t *testing.T) {
	p := tunnel.DefaultParams()
	p.Debug = true
	c, dev := newTestController(&p)

	require.NoError(t, c.DebugDraw())
	assert.Empty(t, dev.tiles)
}

func TestReleaseFreesEverything(t *testing.T) {
	p := tunnel.DefaultParams()
	c, dev := newTestController(&p)
	tick(t, c, dev)

	c.Release()
	assert.Empty(t, dev.liveTargets())
	assert.Zero(t, dev.liveMeshes())
	for _, prog := range dev.programs {
		assert.True(t, prog.released)
	}
	assert.Equal(t, StateNeedsRebuild, c.State())

	tick(t, c, dev)
	assert.Len(t, dev.liveTargets(), 3)
}
