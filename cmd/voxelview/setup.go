package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"voxelrender/internal/config"
	"voxelrender/internal/culling"
	"voxelrender/internal/gpu/glbackend"
	"voxelrender/internal/logging"
	"voxelrender/internal/pipeline"
	"voxelrender/internal/registry"
	"voxelrender/internal/world"
)

const (
	winW = 1280
	winH = 720
)

const (
	blockBedrock world.BlockID = iota + 1
	blockStone
	blockDirt
	blockGrass
	blockGlass
	blockPoppy
)

var blocks = []registry.BlockDescriptor{
	{ID: blockBedrock, Name: "bedrock", Textures: []string{"bedrock"}},
	{ID: blockStone, Name: "stone", Textures: []string{"stone"}},
	{ID: blockDirt, Name: "dirt", Textures: []string{"dirt"}},
	{ID: blockGrass, Name: "grass", Textures: []string{"grass_top", "dirt", "grass_side"}},
	{ID: blockGlass, Name: "glass", Opacity: registry.Transparent, Textures: []string{"glass"}},
	{ID: blockPoppy, Name: "poppy", Opacity: registry.Transparent, Shape: registry.ShapeCross, Textures: []string{"poppy"}},
}

func setupWindow() (*glfw.Window, error) {
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)

	window, err := glfw.CreateWindow(winW, winH, "voxelview", nil, nil)
	if err != nil {
		return nil, err
	}
	window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		return nil, err
	}

	// Frame pacing is done by FPSLimiter.
	glfw.SwapInterval(0)
	window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
	return window, nil
}

func setupViewer(window *glfw.Window, s config.Settings, texturesDir string, seed int64, fpsLimit int) (*Viewer, error) {
	pipe, err := pipeline.New(s)
	if err != nil {
		return nil, err
	}
	for _, d := range blocks {
		if err := pipe.RegisterBlock(d); err != nil {
			pipe.Close()
			return nil, err
		}
	}
	if err := registerImages(pipe, texturesDir, seed); err != nil {
		pipe.Close()
		return nil, err
	}
	if _, err := pipe.BuildAtlas(); err != nil {
		pipe.Close()
		return nil, fmt.Errorf("build atlas: %w", err)
	}

	backend, err := glbackend.New()
	if err != nil {
		pipe.Close()
		return nil, err
	}

	gen := world.NewGenerator(seed, world.Palette{Top: blockGrass, Filler: blockDirt, Base: blockBedrock})
	streamer := world.NewChunkStreamer(pipe, gen)
	streamer.StreamChunksAroundSync(world.ChunkCoord{}, 2)
	if err := pipe.Warmup(context.Background()); err != nil {
		logging.Logger().Warn("warmup", "err", err)
	}

	fbW, fbH := window.GetFramebufferSize()
	gl.Viewport(0, 0, int32(fbW), int32(fbH))
	cam := culling.NewCamera(winW, winH)
	cam.Position = mgl32.Vec3{0.5, float32(gen.HeightAt(0, 0)) + 3, 0.5}
	cam.Far = float32((s.RenderDistance + 2) * world.ChunkSize)

	return newViewer(window, pipe, backend, streamer, cam, NewFPSLimiter(fpsLimit)), nil
}

// registerImages loads <id>.png from dir for every texture the blocks use and
// paints a generated tile for the rest.
func registerImages(pipe *pipeline.Pipeline, dir string, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	for _, id := range pipe.Registry().TextureIDs() {
		img, err := loadPNG(dir, id)
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			img = generatedTile(id, rng)
		default:
			return err
		}
		if err := pipe.RegisterFaceImage(id, img); err != nil {
			return err
		}
	}
	return nil
}

func loadPNG(dir, id string) (image.Image, error) {
	if dir == "" {
		return nil, fs.ErrNotExist
	}
	f, err := os.Open(filepath.Join(dir, id+".png"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return img, nil
}

var tileColors = map[string]color.RGBA{
	"bedrock":    {60, 60, 60, 255},
	"stone":      {125, 125, 125, 255},
	"dirt":       {134, 96, 67, 255},
	"grass_top":  {95, 159, 53, 255},
	"grass_side": {134, 96, 67, 255},
	"glass":      {200, 230, 240, 60},
	"poppy":      {200, 30, 30, 255},
}

// generatedTile paints a noisy 16×16 tile so faces are distinguishable without
// any asset files.
func generatedTile(id string, rng *rand.Rand) image.Image {
	const size = 16
	base, ok := tileColors[id]
	if !ok {
		base = color.RGBA{255, 0, 255, 255}
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := base
			shade := 0.85 + rng.Float64()*0.3
			c.R = uint8(min(float64(c.R)*shade, 255))
			c.G = uint8(min(float64(c.G)*shade, 255))
			c.B = uint8(min(float64(c.B)*shade, 255))
			switch id {
			case "grass_side":
				if y < 4 {
					c = tileColors["grass_top"]
				}
			case "glass":
				if x == 0 || y == 0 || x == size-1 || y == size-1 {
					c = color.RGBA{230, 245, 250, 255}
				}
			case "poppy":
				dx, dy := x-size/2, y-size/3
				switch {
				case dx*dx+dy*dy <= 9:
				case x == size/2 && y > size/3:
					c = color.RGBA{40, 120, 30, 255}
				default:
					c = color.RGBA{}
				}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
