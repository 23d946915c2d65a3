package soft

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func defaultKernel() constructParams {
	return constructParams{
		radius: 5, height: 10,
		offset: 1, repeat: 100,
		density: 1,
		bump:    1, warpX: 1, warpY: 1,
	}
}

func assertVecNear(t *testing.T, want, got mgl32.Vec4, eps float32, msgAndArgs ...any) {
	t.Helper()
	for i := 0; i < 4; i++ {
		assert.InDelta(t, want[i], got[i], float64(eps), msgAndArgs...)
	}
}

func TestHashRange(t *testing.T) {
	for x := int32(0); x < 64; x++ {
		for y := int32(0); y < 64; y++ {
			h := hash2(x, y)
			assert.GreaterOrEqual(t, h, float32(0))
			assert.LessOrEqual(t, h, float32(1))
		}
	}
	assert.NotEqual(t, hash2(1, 2), hash2(2, 1))
}

func TestValueNoiseIsPeriodic(t *testing.T) {
	for _, p := range [][2]float32{{0.3, 0.7}, {2.5, 1.25}, {7.9, 0.01}} {
		base := valueNoise(p[0], p[1], 8, 4)
		assert.InDelta(t, base, valueNoise(p[0]+8, p[1], 8, 4), 1e-4)
		assert.InDelta(t, base, valueNoise(p[0], p[1]+4, 8, 4), 1e-4)
		assert.InDelta(t, base, valueNoise(p[0]-8, p[1]-4, 8, 4), 1e-4)
		assert.GreaterOrEqual(t, base, float32(-1))
		assert.LessOrEqual(t, base, float32(1))
	}
}

func TestPositionClosesTheRing(t *testing.T) {
	k := defaultKernel()
	const w, h = 80, 40
	for y := 0; y < h; y += 7 {
		assertVecNear(t, position(0, y, w, h, k), position(w, y, w, h, k), 1e-3, "row %d", y)
	}
}

func TestPositionTilesAlongRepeat(t *testing.T) {
	k := defaultKernel()
	k.repeat = 3
	k.offset = 0.3
	shifted := k
	shifted.offset += k.repeat

	const w, h = 32, 16
	for y := 0; y < h; y += 3 {
		for x := 0; x < w; x += 5 {
			assertVecNear(t, position(x, y, w, h, k), position(x, y, w, h, shifted), 1e-3)
		}
	}
}

func TestPositionWithoutDisplacementIsACylinder(t *testing.T) {
	k := defaultKernel()
	k.bump, k.warpX, k.warpY = 0, 0, 0

	const w, h = 16, 8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := position(x, y, w, h, k)
			assert.InDelta(t, 5, math.Hypot(float64(p.X()), float64(p.Y())), 1e-4)
			assert.InDelta(t, (float32(y)/h-0.5)*10, p.Z(), 1e-5)
		}
	}
}

func TestBumpMovesRadius(t *testing.T) {
	k := defaultKernel()
	k.warpX, k.warpY = 0, 0
	const w, h = 16, 8
	for x := 0; x < w; x++ {
		p := position(x, 3, w, h, k)
		r := math.Hypot(float64(p.X()), float64(p.Y()))
		assert.InDelta(t, 5+float64(p.W()), r, 1e-4, "radius follows bump noise stored in w")
	}
}

func TestDebugColor(t *testing.T) {
	assert.Equal(t, uint8(128), debugColor(0))
	assert.Greater(t, debugColor(5), debugColor(1))
	assert.Less(t, debugColor(-5), debugColor(-1))
	assert.Equal(t, uint8(255), debugColor(1e6))
	assert.Equal(t, uint8(0), debugColor(-1e6))
}
