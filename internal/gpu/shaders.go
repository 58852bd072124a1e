package gpu

import (
	"embed"
	"io/fs"
)

//go:embed shaders/*.wgsl
var shaderFS embed.FS

// Shader paths, relative to the shader file system.
const (
	FullscreenShader = "fullscreen.wgsl"
	SkyShader        = "sky.wgsl"
	TerrainShader    = "terrain.wgsl"
	TonemapShader    = "tonemap.wgsl"
	WaterShader      = "water.wgsl"
	BlitShader       = "blit.wgsl"
)

// Shaders returns the embedded WGSL sources rooted at the shader directory.
func Shaders() fs.FS {
	sub, err := fs.Sub(shaderFS, "shaders")
	if err != nil {
		panic(err)
	}
	return sub
}
