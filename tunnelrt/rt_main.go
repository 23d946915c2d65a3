package main

import (
	"flag"
	"os"
	"runtime"

	"github.com/gekko3d/tunnel"
	"github.com/gekko3d/tunnel/tunnelrt/rt/app"
	"github.com/gekko3d/tunnel/tunnelrt/rt/host"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging and the buffer overlay")
	paramsPath := flag.String("params", "", "Tunnel parameters file (.json or .toml)")
	watch := flag.Bool("watch", false, "Reload -params when the file changes")
	listen := flag.String("listen", "", "Serve the websocket parameter channel on this address")
	headless := flag.Bool("headless", false, "Run on the software device without a window")
	snapshot := flag.String("snapshot", "tunnel.png", "Headless: PNG written after the last frame")
	frames := flag.Int("frames", 60, "Headless: frames to run")
	scroll := flag.Float64("scroll", 0, "Offset scroll speed, in offset units per second")
	flag.Parse()

	log := tunnel.NewDefaultLogger("tunnel", *debug)

	params := tunnel.DefaultParams()
	if *paramsPath != "" {
		p, err := tunnel.LoadParams(*paramsPath)
		if err != nil {
			log.Errorf("load params: %v", err)
			os.Exit(1)
		}
		params = p
	}
	params.Debug = params.Debug || *debug

	if *headless {
		opts := host.DefaultHeadlessOptions()
		opts.Frames = *frames
		opts.Snapshot = *snapshot
		h := host.NewHeadless(&params, opts, log)
		h.Loop.ScrollSpeed = float32(*scroll)

		stats, err := h.Run()
		if err != nil {
			log.Errorf("headless run: %v", err)
			os.Exit(1)
		}
		log.Infof("%d frames, %d rebuilds, %d dispatches, wrote %s", stats.Frames, stats.Rebuilds, stats.Dispatches, opts.Snapshot)
		return
	}

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(1280, 720, "Fractal Tunnel", nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	application := app.NewApp(window, &params, log)
	if err := application.Init(); err != nil {
		panic(err)
	}
	defer application.Release()
	application.Loop.ScrollSpeed = float32(*scroll)

	if *watch && *paramsPath != "" {
		w, err := tunnel.WatchParams(*paramsPath, application.Loop.Editor, log)
		if err != nil {
			log.Warnf("watch %s: %v", *paramsPath, err)
		} else {
			defer w.Close()
		}
	}

	if *listen != "" {
		remote := tunnel.NewRemoteServer(application.Loop.Editor, log)
		application.Loop.Remote = remote
		go func() {
			if err := remote.ListenAndServe(*listen); err != nil {
				log.Errorf("parameter channel: %v", err)
			}
		}()
	}

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		application.HandleKey(key, action)
	})

	for !window.ShouldClose() {
		glfw.PollEvents()
		application.Render()
	}
}
