package tunnel

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Notifier receives the structural-change signal.
type Notifier interface {
	NotifyConfigChanged()
}

// ParamsPatch is a partial parameter edit. Nil fields are left untouched.
type ParamsPatch struct {
	Radius       *float32    `json:"radius,omitempty"`
	Height       *float32    `json:"height,omitempty"`
	Slices       *int        `json:"slices,omitempty"`
	Stacks       *int        `json:"stacks,omitempty"`
	Offset       *float32    `json:"offset,omitempty"`
	Repeat       *int        `json:"repeat,omitempty"`
	Density      *int        `json:"density,omitempty"`
	Bump         *float32    `json:"bump,omitempty"`
	Warp         *float32    `json:"warp,omitempty"`
	SurfaceColor *mgl32.Vec4 `json:"surface_color,omitempty"`
	LineColor    *mgl32.Vec4 `json:"line_color,omitempty"`
	Debug        *bool       `json:"debug,omitempty"`
}

func (pp ParamsPatch) ApplyTo(p *Params) {
	setIf(&p.Radius, pp.Radius)
	setIf(&p.Height, pp.Height)
	setIf(&p.Slices, pp.Slices)
	setIf(&p.Stacks, pp.Stacks)
	setIf(&p.Offset, pp.Offset)
	setIf(&p.Repeat, pp.Repeat)
	setIf(&p.Density, pp.Density)
	setIf(&p.Bump, pp.Bump)
	setIf(&p.Warp, pp.Warp)
	setIf(&p.SurfaceColor, pp.SurfaceColor)
	setIf(&p.LineColor, pp.LineColor)
	setIf(&p.Debug, pp.Debug)
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// Editor is the parameter editing surface. Edits may be queued from any
// goroutine; they are written into the live Params only by Apply, which the
// host calls on the frame thread before ticking the pipeline.
type Editor struct {
	mu      sync.Mutex
	pending []func(p *Params)

	params *Params
	target Notifier
	log    Logger
}

func NewEditor(params *Params, target Notifier, log Logger) *Editor {
	return &Editor{
		params: params,
		target: target,
		log:    OrNop(log),
	}
}

func (e *Editor) Edit(fn func(p *Params)) {
	e.mu.Lock()
	e.pending = append(e.pending, fn)
	e.mu.Unlock()
}

func (e *Editor) Patch(pp ParamsPatch) {
	e.Edit(pp.ApplyTo)
}

// Replace queues a full parameter replacement, e.g. after a params file reload.
func (e *Editor) Replace(p Params) {
	e.Edit(func(dst *Params) { *dst = p })
}

func (e *Editor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Apply drains queued edits into the live parameters. When slices or stacks
// changed it signals the target once, however many edits touched them.
func (e *Editor) Apply() bool {
	e.mu.Lock()
	edits := e.pending
	e.pending = nil
	e.mu.Unlock()

	if len(edits) == 0 {
		return false
	}

	before := *e.params
	for _, edit := range edits {
		edit(e.params)
	}

	if before.SameTopology(*e.params) {
		return false
	}
	e.log.Debugf("topology edit %dx%d -> %dx%d", before.Slices, before.Stacks, e.params.Slices, e.params.Stacks)
	if e.target != nil {
		e.target.NotifyConfigChanged()
	}
	return true
}
