package main

import (
	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"voxelrender/internal/config"
	"voxelrender/internal/logging"
	"voxelrender/internal/world"
)

const (
	mouseSensitivity = 0.1
	reach            = 6.0
)

func setupInputHandlers(window *glfw.Window, v *Viewer) {
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		if v.paused {
			return
		}
		if v.firstMouse {
			v.lastX, v.lastY = xpos, ypos
			v.firstMouse = false
			return
		}
		dx, dy := xpos-v.lastX, v.lastY-ypos
		v.lastX, v.lastY = xpos, ypos
		v.cam.Yaw += float32(dx * mouseSensitivity)
		v.cam.Pitch = mgl32.Clamp(v.cam.Pitch+float32(dy*mouseSensitivity), -89, 89)
	})

	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if v.paused || action != glfw.Press {
			return
		}
		r := v.raycast()
		if !r.Hit {
			return
		}
		var err error
		switch button {
		case glfw.MouseButtonLeft:
			hit := r.HitPosition
			err = v.pipe.SetBlock(hit[0], hit[1], hit[2], world.BlockAir)
		case glfw.MouseButtonRight:
			adj := r.AdjacentPosition
			err = v.pipe.SetBlock(adj[0], adj[1], adj[2], v.selected)
		}
		if err != nil {
			logging.Logger().Debug("edit rejected", "err", err)
		}
	})

	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyEscape:
			v.paused = !v.paused
			if v.paused {
				w.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
			} else {
				w.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
				v.firstMouse = true
			}
		case glfw.KeyLeftBracket:
			v.changeRenderDistance(-1)
		case glfw.KeyRightBracket:
			v.changeRenderDistance(1)
		case glfw.Key1, glfw.Key2, glfw.Key3, glfw.Key4, glfw.Key5, glfw.Key6:
			v.selected = world.BlockID(key-glfw.Key1) + blockBedrock
		}
	})

	window.SetFramebufferSizeCallback(func(w *glfw.Window, fbWidth, fbHeight int) {
		gl.Viewport(0, 0, int32(fbWidth), int32(fbHeight))
		if fbHeight > 0 {
			v.cam.Aspect = float32(fbWidth) / float32(fbHeight)
		}
	})
}

func (v *Viewer) changeRenderDistance(delta int) {
	config.SetRenderDistance(config.GetRenderDistance() + delta)
	s := v.pipe.Settings()
	s.RenderDistance = config.GetRenderDistance()
	if err := v.pipe.UpdateSettings(s); err != nil {
		logging.Logger().Warn("render distance", "err", err)
		return
	}
	v.cam.Far = float32((s.RenderDistance + 2) * world.ChunkSize)
	logging.Logger().Info("render distance", "chunks", s.RenderDistance)
}

func (v *Viewer) raycast() world.RaycastResult {
	return world.Raycast(v.cam.Position, v.cam.Front(), 0, reach, func(x, y, z int) bool {
		return v.pipe.BlockAt(x, y, z) != world.BlockAir
	})
}
