// Command voxelview flies a camera over generated terrain and renders it
// through the chunk pipeline with OpenGL.
package main

import (
	"flag"
	"log/slog"
	"os"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/xlab/closer"

	"voxelrender/internal/config"
	"voxelrender/internal/logging"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to a YAML settings file")
		texturesDir = flag.String("textures", "", "directory of <texture id>.png face images")
		seed        = flag.Int64("seed", 1337, "terrain seed")
		fpsLimit    = flag.Int("fps", 144, "frame rate cap, 0 for unlimited")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	log := logging.Logger()

	settings := config.Default()
	if *configPath != "" {
		s, err := config.Load(*configPath)
		if err != nil {
			log.Error("load settings", "path", *configPath, "err", err)
			os.Exit(1)
		}
		settings = s
	}
	if err := config.Apply(settings); err != nil {
		log.Error("apply settings", "err", err)
		os.Exit(1)
	}

	if err := glfw.Init(); err != nil {
		log.Error("glfw init", "err", err)
		os.Exit(1)
	}
	closer.Bind(glfw.Terminate)

	window, err := setupWindow()
	if err != nil {
		log.Error("window", "err", err)
		closer.Exit(1)
	}

	v, err := setupViewer(window, settings, *texturesDir, *seed, *fpsLimit)
	if err != nil {
		log.Error("viewer setup", "err", err)
		closer.Exit(1)
	}
	closer.Bind(v.Close)

	setupInputHandlers(window, v)
	v.Run()
	closer.Close()
}
