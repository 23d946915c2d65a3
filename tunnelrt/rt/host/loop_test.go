package host

import (
	"testing"

	"github.com/gekko3d/tunnel"
	"github.com/gekko3d/tunnel/tunnelrt/rt/core"
	"github.com/gekko3d/tunnel/tunnelrt/rt/soft"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop() (*Loop, *soft.Device, *tunnel.Params) {
	p := tunnel.DefaultParams()
	dev := soft.NewDevice(64, 64, nil)
	return NewLoop(dev, &p, nil), dev, &p
}

func TestStepAppliesQueuedTopologyEdits(t *testing.T) {
	l, _, p := newTestLoop()
	_, err := l.Step(1.0/60, 1)
	require.NoError(t, err)

	l.AdjustSlices(ResolutionStep)
	l.AdjustSlices(ResolutionStep)
	assert.Equal(t, 40, p.Slices, "edits wait for the frame thread")

	_, err = l.Step(1.0/60, 1)
	require.NoError(t, err)
	assert.Equal(t, 48, p.Slices)
	assert.Equal(t, 2, l.Ctrl.Stats().Rebuilds)
	w, _ := l.Ctrl.Buffers().Size()
	assert.Equal(t, 96, w)
}

func TestAdjustResolutionClamps(t *testing.T) {
	l, _, p := newTestLoop()
	for i := 0; i < 30; i++ {
		l.AdjustStacks(ResolutionStep)
	}
	l.AdjustSlices(-1000)
	_, err := l.Step(0, 1)
	require.NoError(t, err)
	assert.Equal(t, tunnel.MaxResolution, p.Stacks)
	assert.Equal(t, tunnel.MinResolution, p.Slices)
}

func TestToggleDebugDoesNotRebuild(t *testing.T) {
	l, _, p := newTestLoop()
	_, err := l.Step(0, 1)
	require.NoError(t, err)

	l.ToggleDebug()
	_, err = l.Step(0, 1)
	require.NoError(t, err)
	assert.True(t, p.Debug)
	assert.Equal(t, 1, l.Ctrl.Stats().Rebuilds)
}

func TestScrollWrapsWithinRepeat(t *testing.T) {
	l, _, p := newTestLoop()
	l.ScrollSpeed = 30
	p.Offset = 90

	_, err := l.Step(1, 1)
	require.NoError(t, err)
	assert.InDelta(t, 20, p.Offset, 1e-4)

	l.ScrollSpeed = -50
	_, err = l.Step(1, 1)
	require.NoError(t, err)
	assert.InDelta(t, 70, p.Offset, 1e-4)
}

func TestStepSetsViewProjOnMaterials(t *testing.T) {
	l, _, p := newTestLoop()
	d, err := l.Step(0, 16.0/9)
	require.NoError(t, err)

	want := l.Camera.ViewProj(p, 16.0/9)
	require.Len(t, d.Materials, 3)
	for _, m := range d.Materials {
		assert.Equal(t, want, m.(*soft.Program).Matrix(core.ParamViewProj))
	}
}

func TestStepSurfacesFailures(t *testing.T) {
	l, dev, _ := newTestLoop()
	dev.FailTargets(0)

	d, err := l.Step(0, 1)
	assert.ErrorIs(t, err, core.ErrResourceAllocation)
	assert.Nil(t, d.Mesh)
	assert.Equal(t, 1, l.FrameErrors())

	dev.FailTargets(-1)
	_, err = l.Step(0, 1)
	require.NoError(t, err)
	assert.Equal(t, core.StateStable, l.Ctrl.State())
}

func TestStepPublishesToRemote(t *testing.T) {
	l, _, p := newTestLoop()
	l.Remote = tunnel.NewRemoteServer(l.Editor, nil)
	l.Editor.Patch(tunnel.ParamsPatch{Bump: ptr(float32(3))})

	_, err := l.Step(0, 1)
	require.NoError(t, err)
	assert.Equal(t, *p, l.Remote.Snapshot())
	assert.Equal(t, float32(3), l.Remote.Snapshot().Bump)
}

func TestCameraLooksDownTheAxis(t *testing.T) {
	p := tunnel.DefaultParams()
	c := DefaultCamera()
	vp := c.ViewProj(&p, 1)

	far := vp.Mul4x1(mgl32.Vec4{0, 0, p.Height / 2, 1})
	require.Greater(t, far.W(), float32(0))
	assert.InDelta(t, 0, far.X()/far.W(), 1e-5)
	assert.InDelta(t, 0, far.Y()/far.W(), 1e-5)

	near := vp.Mul4x1(mgl32.Vec4{0, 0, -p.Height / 2, 1})
	assert.Greater(t, near.W(), float32(0), "near end is in front of the eye")
}

func ptr[T any](v T) *T { return &v }
