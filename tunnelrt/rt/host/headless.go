package host

import (
	"fmt"
	"image/color"

	"github.com/gekko3d/tunnel"
	"github.com/gekko3d/tunnel/tunnelrt/rt/core"
	"github.com/gekko3d/tunnel/tunnelrt/rt/soft"
)

type HeadlessOptions struct {
	Frames        int
	DT            float64
	Width, Height int
	// Snapshot is the PNG written after the last frame; empty skips it.
	Snapshot string
}

func DefaultHeadlessOptions() HeadlessOptions {
	return HeadlessOptions{Frames: 60, DT: 1.0 / 60, Width: 512, Height: 512}
}

// Headless runs the loop on the software device.
type Headless struct {
	Loop   *Loop
	Device *soft.Device
	opts   HeadlessOptions
	log    tunnel.Logger
}

func NewHeadless(params *tunnel.Params, opts HeadlessOptions, log tunnel.Logger) *Headless {
	log = tunnel.OrNop(log)
	dev := soft.NewDevice(opts.Width, opts.Height, log)
	return &Headless{
		Loop:   NewLoop(dev, params, log),
		Device: dev,
		opts:   opts,
		log:    log,
	}
}

// Run steps the configured number of frames, draws the last one (wireframe
// plus overlay when the debug flag is set) and writes the snapshot. The
// pipeline is released when Run returns, whatever the outcome.
func (h *Headless) Run() (core.Stats, error) {
	defer h.Loop.Release()
	aspect := float32(h.opts.Width) / float32(h.opts.Height)
	var (
		d   core.Drawable
		err error
	)
	for i := 0; i < h.opts.Frames; i++ {
		d, err = h.Loop.Step(h.opts.DT, aspect)
	}
	if err != nil {
		return h.Loop.Ctrl.Stats(), fmt.Errorf("last frame: %w", err)
	}
	if err := h.draw(d, aspect); err != nil {
		return h.Loop.Ctrl.Stats(), err
	}
	if h.opts.Snapshot != "" {
		if err := h.Device.SavePNG(h.opts.Snapshot); err != nil {
			return h.Loop.Ctrl.Stats(), err
		}
	}
	return h.Loop.Ctrl.Stats(), nil
}

func (h *Headless) draw(d core.Drawable, aspect float32) error {
	h.Device.ClearCanvas(color.Black)
	if d.Mesh == nil || len(d.Materials) < 3 {
		return nil
	}
	vp := h.Loop.Camera.ViewProj(h.Loop.Params, aspect)
	if err := h.Device.DrawWireframe(d.Mesh, d.Materials[2], vp); err != nil {
		return fmt.Errorf("wireframe: %w", err)
	}
	if err := h.Loop.Ctrl.DebugDraw(); err != nil {
		return fmt.Errorf("overlay: %w", err)
	}
	return nil
}
