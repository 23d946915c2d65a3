package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKernelSetEnsureIsLazy(t *testing.T) {
	dev := newFakeDevice()
	k := NewKernelSet(dev, nil)

	require.NoError(t, k.Ensure())
	require.Len(t, dev.programs, 5)
	assert.Len(t, dev.programsOf(ProgramSurface), 2)

	require.NoError(t, k.Ensure())
	assert.Len(t, dev.programs, 5)

	k.Program(RoleLine).Release()
	assert.False(t, k.Alive())
	require.NoError(t, k.Ensure())
	assert.Len(t, dev.programs, 6)
	assert.True(t, k.Alive())
}

func TestKernelSetBindRecords(t *testing.T) {
	dev := newFakeDevice()
	k := NewKernelSet(dev, nil)
	pool := NewBufferPool(dev, nil)
	require.NoError(t, k.Ensure())

	b, err := pool.Reallocate(8, 8)
	require.NoError(t, err)
	assert.False(t, k.BoundTo(b))

	k.Bind(b)
	recs := k.Bindings()
	require.Len(t, recs, 5)
	assert.True(t, k.BoundTo(b))

	slots := map[Role][]string{}
	for _, rec := range recs {
		slots[rec.Role] = append(slots[rec.Role], rec.Slot)
		assert.Equal(t, b.Generation, rec.Generation)
	}
	assert.ElementsMatch(t, []string{SlotPosition, SlotNormal}, slots[RoleSurfaceA])
	assert.ElementsMatch(t, []string{SlotPosition, SlotNormal}, slots[RoleSurfaceB])
	assert.Equal(t, []string{SlotPosition}, slots[RoleLine])
	assert.NotContains(t, slots, RoleConstruct)
	assert.NotContains(t, slots, RoleDebug)

	next, err := pool.Reallocate(8, 8)
	require.NoError(t, err)
	assert.False(t, k.BoundTo(next))
	k.Bind(next)
	assert.Len(t, k.Bindings(), 5, "rebinding replaces records")
	assert.True(t, k.BoundTo(next))
	assert.False(t, k.BoundTo(b))
}

func TestRoleNames(t *testing.T) {
	assert.Equal(t, "surface-b", RoleSurfaceB.String())
	assert.Equal(t, "Role(9)", Role(9).String())
	assert.Equal(t, "debug", ProgramDebug.String())
}
