// Package host holds the frame loop shared by the windowed app and the
// headless runner: it applies queued parameter edits, scrolls the tunnel,
// ticks the pipeline and hands the result to whichever device draws it.
package host

import (
	"math"

	"github.com/gekko3d/tunnel"
	"github.com/gekko3d/tunnel/tunnelrt/rt/core"
)

const (
	// ResolutionStep is how much one key press changes slices or stacks.
	ResolutionStep = 4
	reportInterval = 1.0
)

// Loop runs on the frame thread. Other goroutines reach it through Editor.
type Loop struct {
	Params      *tunnel.Params
	Editor      *tunnel.Editor
	Ctrl        *core.Controller
	Remote      *tunnel.RemoteServer
	Camera      Camera
	Profiler    *Profiler
	ScrollSpeed float32

	log         tunnel.Logger
	clock       float64
	lastReport  float64
	frameErrors int
}

func NewLoop(dev core.Device, params *tunnel.Params, log tunnel.Logger) *Loop {
	log = tunnel.OrNop(log)
	ctrl := core.NewController(dev, params, log)
	return &Loop{
		Params:   params,
		Editor:   tunnel.NewEditor(params, ctrl, log),
		Ctrl:     ctrl,
		Camera:   DefaultCamera(),
		Profiler: NewProfiler(),
		log:      log,
	}
}

// Step advances the loop by dt seconds and returns what to draw this frame.
// A failed tick is logged and returned; the next Step retries the rebuild.
func (l *Loop) Step(dt float64, aspect float32) (core.Drawable, error) {
	l.Profiler.BeginScope("edits")
	l.Editor.Apply()
	l.Profiler.EndScope("edits")

	l.scroll(dt)

	l.Profiler.BeginScope("tick")
	err := l.Ctrl.Tick()
	l.Profiler.EndScope("tick")
	l.clock += dt
	if err != nil {
		l.frameErrors++
		l.log.Errorf("frame skipped: %v", err)
		return core.Drawable{}, err
	}

	vp := l.Camera.ViewProj(l.Params, aspect)
	d := l.Ctrl.Drawable()
	for _, m := range d.Materials {
		m.SetMatrix(core.ParamViewProj, vp)
	}
	if l.Remote != nil {
		l.Remote.Publish(*l.Params)
	}
	l.report()
	return d, nil
}

// scroll advances the offset, keeping it within one repeat period. The
// construct kernel tiles with that period, so wrapping is invisible.
func (l *Loop) scroll(dt float64) {
	p := l.Params
	if l.ScrollSpeed == 0 {
		return
	}
	off := float64(p.Offset) + float64(l.ScrollSpeed)*dt
	if p.Repeat > 0 {
		off = math.Mod(off, float64(p.Repeat))
		if off < 0 {
			off += float64(p.Repeat)
		}
	}
	p.Offset = float32(off)
}

func (l *Loop) report() {
	st := l.Ctrl.Stats()
	l.Profiler.SetCount("rebuilds", st.Rebuilds)
	l.Profiler.SetCount("dispatches", st.Dispatches)
	l.Profiler.SetCount("skipped", st.SkippedFrames)
	l.Profiler.SetCount("stale", st.StaleRecoveries)
	if !l.log.DebugEnabled() || l.clock-l.lastReport < reportInterval {
		return
	}
	l.log.Debugf("%s", l.Profiler.GetStatsString())
	l.Profiler.Reset()
	l.lastReport = l.clock
}

func (l *Loop) FrameErrors() int {
	return l.frameErrors
}

func (l *Loop) AdjustSlices(delta int) {
	l.Editor.Edit(func(p *tunnel.Params) {
		p.Slices = tunnel.ClampResolution(p.Slices + delta)
	})
}

func (l *Loop) AdjustStacks(delta int) {
	l.Editor.Edit(func(p *tunnel.Params) {
		p.Stacks = tunnel.ClampResolution(p.Stacks + delta)
	})
}

func (l *Loop) ToggleDebug() {
	l.Editor.Edit(func(p *tunnel.Params) {
		p.Debug = !p.Debug
	})
}

func (l *Loop) Release() {
	l.Ctrl.Release()
}
