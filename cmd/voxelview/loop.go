package main

import (
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"voxelrender/internal/config"
	"voxelrender/internal/culling"
	"voxelrender/internal/gpu"
	"voxelrender/internal/gpu/glbackend"
	"voxelrender/internal/logging"
	"voxelrender/internal/pipeline"
	"voxelrender/internal/profiling"
	"voxelrender/internal/world"
)

const (
	flySpeed      = 20.0 // blocks per second
	fastFactor    = 4.0
	evictInterval = 750 * time.Millisecond
)

// Viewer owns the window loop state.
type Viewer struct {
	window   *glfw.Window
	pipe     *pipeline.Pipeline
	backend  *glbackend.Backend
	streamer *world.ChunkStreamer
	cam      culling.Camera
	limiter  *FPSLimiter

	paused     bool
	firstMouse bool
	lastX      float64
	lastY      float64
	selected   world.BlockID

	frames    int
	lastFPS   time.Time
	lastTime  time.Time
	lastEvict time.Time
	last      pipeline.Stats
}

func newViewer(window *glfw.Window, pipe *pipeline.Pipeline, backend *glbackend.Backend, streamer *world.ChunkStreamer, cam culling.Camera, limiter *FPSLimiter) *Viewer {
	now := time.Now()
	return &Viewer{
		window:     window,
		pipe:       pipe,
		backend:    backend,
		streamer:   streamer,
		cam:        cam,
		limiter:    limiter,
		firstMouse: true,
		selected:   blockStone,
		lastFPS:    now,
		lastTime:   now,
		lastEvict:  now,
	}
}

// Run renders until the window is closed.
func (v *Viewer) Run() {
	gl.ClearColor(0.53, 0.72, 0.92, 1)
	for !v.window.ShouldClose() {
		v.tick()
	}
}

func (v *Viewer) tick() {
	profiling.ResetFrame()
	now := time.Now()
	dt := now.Sub(v.lastTime).Seconds()
	v.lastTime = now

	if !v.paused {
		v.move(float32(dt))
	}

	center := world.ChunkAt(v.cam.Position)
	v.streamer.StreamChunksAroundAsync(center, config.GetChunkLoadRadius())
	if now.Sub(v.lastEvict) > evictInterval {
		func() {
			defer profiling.Track("world.EvictFarChunks")()
			v.streamer.EvictFarChunks(center, config.GetChunkEvictRadius())
		}()
		v.lastEvict = now
	}

	out, err := v.pipe.Frame(v.cam)
	if err != nil {
		logging.Logger().Error("frame", "err", err)
		v.window.SetShouldClose(true)
		return
	}
	v.last = out.Stats

	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	v.backend.SetViewProjection(out.ViewProjection)
	func() {
		defer profiling.Track("gpu.Execute")()
		if err := gpu.Execute(v.backend, out.Frame); err != nil {
			logging.Logger().Error("execute frame", "frame", out.Stats.Frame, "err", err)
		}
	}()

	func() { defer profiling.Track("glfw.SwapBuffers")(); v.window.SwapBuffers() }()
	func() { defer profiling.Track("glfw.PollEvents")(); glfw.PollEvents() }()
	v.limiter.Wait(v.paused)

	v.frames++
	if time.Since(v.lastFPS) >= time.Second {
		logging.Logger().Info("fps",
			"fps", v.frames,
			"visible", v.last.Visible,
			"drawn", v.last.Drawn,
			"stale", v.last.Stale,
			"in_flight", v.last.InFlight,
			"resident", v.last.Resident,
			"top", profiling.TopN(4))
		v.frames = 0
		v.lastFPS = time.Now()
	}
}

// move applies WASD, space and shift to the camera.
func (v *Viewer) move(dt float32) {
	front := v.cam.Front()
	flat := mgl32.Vec3{front.X(), 0, front.Z()}
	if flat.Len() > 0 {
		flat = flat.Normalize()
	}
	right := flat.Cross(mgl32.Vec3{0, 1, 0})

	var dir mgl32.Vec3
	if v.window.GetKey(glfw.KeyW) == glfw.Press {
		dir = dir.Add(flat)
	}
	if v.window.GetKey(glfw.KeyS) == glfw.Press {
		dir = dir.Sub(flat)
	}
	if v.window.GetKey(glfw.KeyD) == glfw.Press {
		dir = dir.Add(right)
	}
	if v.window.GetKey(glfw.KeyA) == glfw.Press {
		dir = dir.Sub(right)
	}
	if v.window.GetKey(glfw.KeySpace) == glfw.Press {
		dir[1]++
	}
	if v.window.GetKey(glfw.KeyLeftShift) == glfw.Press {
		dir[1]--
	}
	if dir.Len() == 0 {
		return
	}
	speed := float32(flySpeed)
	if v.window.GetKey(glfw.KeyLeftControl) == glfw.Press {
		speed *= fastFactor
	}
	v.cam.Position = v.cam.Position.Add(dir.Normalize().Mul(speed * dt))
}

// Close stops the workers and releases GPU resources. The GL context must
// still be current.
func (v *Viewer) Close() {
	v.streamer.Close()
	if err := gpu.Execute(v.backend, gpu.Frame{Frees: v.pipe.Close()}); err != nil {
		logging.Logger().Warn("release buffers", "err", err)
	}
	v.backend.Close()
}
