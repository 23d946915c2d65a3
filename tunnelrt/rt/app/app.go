package app

import (
	"fmt"

	"github.com/gekko3d/tunnel"
	"github.com/gekko3d/tunnel/tunnelrt/rt/gpu"
	"github.com/gekko3d/tunnel/tunnelrt/rt/host"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

const depthFormat = wgpu.TextureFormatDepth24Plus

type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	DepthTexture *wgpu.Texture
	DepthView    *wgpu.TextureView

	Tunnel *gpu.Device
	Loop   *host.Loop
	Params *tunnel.Params
	Log    tunnel.Logger

	LastTime       float64
	LastRenderTime float64

	FrameCount int
	FPS        float64
	FPSTime    float64
}

func NewApp(window *glfw.Window, params *tunnel.Params, log tunnel.Logger) *App {
	return &App{
		Window: window,
		Params: params,
		Log:    tunnel.OrNop(log),
	}
}

func (a *App) Init() error {
	a.Instance = wgpu.CreateInstance(nil)
	a.Surface = a.Instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(a.Window))

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: a.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return err
	}
	a.Adapter = adapter

	a.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return err
	}
	a.Queue = a.Device.GetQueue()

	width, height := a.Window.GetFramebufferSize()
	caps := a.Surface.GetCapabilities(adapter)
	format := caps.Formats[0]

	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	a.Surface.Configure(adapter, a.Device, a.Config)

	if err := a.setupDepth(width, height); err != nil {
		return err
	}

	a.Tunnel, err = gpu.NewDevice(a.Device, format, depthFormat, a.Log)
	if err != nil {
		return fmt.Errorf("tunnel device: %w", err)
	}
	a.Loop = host.NewLoop(a.Tunnel, a.Params, a.Log)

	a.LastTime = glfw.GetTime()
	return nil
}

func (a *App) setupDepth(w, h int) error {
	if w == 0 || h == 0 {
		return nil
	}
	if a.DepthView != nil {
		a.DepthView.Release()
		a.DepthView = nil
	}
	if a.DepthTexture != nil {
		a.DepthTexture.Release()
		a.DepthTexture = nil
	}

	var err error
	a.DepthTexture, err = a.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Depth Tex",
		Size:          wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        depthFormat,
		Usage:         wgpu.TextureUsageRenderAttachment,
		SampleCount:   1,
	})
	if err != nil {
		return err
	}
	a.DepthView, err = a.DepthTexture.CreateView(nil)
	return err
}

func (a *App) Resize(w, h int) {
	if w > 0 && h > 0 {
		a.Config.Width = uint32(w)
		a.Config.Height = uint32(h)
		a.Surface.Configure(a.Adapter, a.Device, a.Config)
		if err := a.setupDepth(w, h); err != nil {
			a.Log.Errorf("resize depth: %v", err)
		}
	}
}

func (a *App) aspect() float32 {
	if a.Config.Height == 0 {
		return 1
	}
	return float32(a.Config.Width) / float32(a.Config.Height)
}

func (a *App) Render() {
	now := glfw.GetTime()
	dt := now - a.LastTime
	a.LastTime = now

	// The loop logs a failed step and retries the rebuild next frame.
	drawable, stepErr := a.Loop.Step(dt, a.aspect())

	nextTexture, err := a.Surface.GetCurrentTexture()
	if err != nil {
		a.Log.Errorf("GetCurrentTexture failed: %v", err)
		return
	}
	defer nextTexture.Release()

	view, err := nextTexture.CreateView(nil)
	if err != nil {
		a.Log.Errorf("CreateView failed: %v", err)
		return
	}
	defer view.Release()

	encoder, err := a.Device.CreateCommandEncoder(nil)
	if err != nil {
		a.Log.Errorf("CreateCommandEncoder failed: %v", err)
		return
	}
	defer encoder.Release()

	rPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            a.DepthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1,
		},
	})
	if stepErr == nil {
		if err := a.Tunnel.EncodeDraw(rPass, drawable); err != nil {
			a.Log.Errorf("tunnel draw: %v", err)
		}
	}
	if err := rPass.End(); err != nil {
		a.Log.Errorf("Render pass End failed: %v", err)
	}

	// Overlay tiles go into a color-only pass on top of the scene.
	if stepErr == nil && a.Params.Debug {
		if err := a.Loop.Ctrl.DebugDraw(); err != nil {
			a.Log.Errorf("debug overlay: %v", err)
		}
		oPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
			ColorAttachments: []wgpu.RenderPassColorAttachment{{
				View:    view,
				LoadOp:  wgpu.LoadOpLoad,
				StoreOp: wgpu.StoreOpStore,
			}},
		})
		if err := a.Tunnel.EncodeOverlay(oPass, int(a.Config.Width), int(a.Config.Height)); err != nil {
			a.Log.Errorf("debug overlay: %v", err)
		}
		if err := oPass.End(); err != nil {
			a.Log.Errorf("Overlay pass End failed: %v", err)
		}
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		a.Log.Errorf("Encoder Finish failed: %v", err)
		return
	}
	defer cmd.Release()
	a.Queue.Submit(cmd)
	a.Surface.Present()

	a.updateFPS(glfw.GetTime())
}

func (a *App) updateFPS(now float64) {
	if a.LastRenderTime > 0 {
		a.FrameCount++
		a.FPSTime += now - a.LastRenderTime
		if a.FPSTime >= 1.0 {
			a.FPS = float64(a.FrameCount) / a.FPSTime
			a.FrameCount = 0
			a.FPSTime = 0
			a.Window.SetTitle(fmt.Sprintf("Fractal Tunnel  %dx%d  %.1f fps", a.Params.Slices, a.Params.Stacks, a.FPS))
		}
	}
	a.LastRenderTime = now
}

// HandleKey maps the resolution and overlay controls. Edits are queued on the
// loop's editor and take effect at the start of the next frame.
func (a *App) HandleKey(key glfw.Key, action glfw.Action) {
	if action != glfw.Press && action != glfw.Repeat {
		return
	}
	switch key {
	case glfw.KeyRight:
		a.Loop.AdjustSlices(host.ResolutionStep)
	case glfw.KeyLeft:
		a.Loop.AdjustSlices(-host.ResolutionStep)
	case glfw.KeyUp:
		a.Loop.AdjustStacks(host.ResolutionStep)
	case glfw.KeyDown:
		a.Loop.AdjustStacks(-host.ResolutionStep)
	case glfw.KeyD:
		if action == glfw.Press {
			a.Loop.ToggleDebug()
		}
	case glfw.KeyEscape:
		a.Window.SetShouldClose(true)
	}
}

func (a *App) Release() {
	if a.Loop != nil {
		a.Loop.Release()
	}
	if a.Tunnel != nil {
		a.Tunnel.Release()
	}
	if a.DepthView != nil {
		a.DepthView.Release()
	}
	if a.DepthTexture != nil {
		a.DepthTexture.Release()
	}
	if a.Device != nil {
		a.Device.Release()
	}
	if a.Adapter != nil {
		a.Adapter.Release()
	}
	if a.Surface != nil {
		a.Surface.Release()
	}
	if a.Instance != nil {
		a.Instance.Release()
	}
}
