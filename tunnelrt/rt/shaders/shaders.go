package shaders

import (
	_ "embed"
)

//go:embed construct.wgsl
var ConstructWGSL string

//go:embed surface.wgsl
var SurfaceWGSL string

//go:embed line.wgsl
var LineWGSL string

//go:embed debug.wgsl
var DebugWGSL string

// Construct entry points, indexed by pass.
var ConstructPasses = [3]string{"fs_position", "fs_normal_a", "fs_normal_b"}
