// Package config holds the renderer settings and the process-wide copy the
// frame loop reads.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is matched by every validation error.
var ErrInvalid = errors.New("config: invalid settings")

// Render distance limits in chunks.
const (
	MinRenderDistance = 1
	MaxRenderDistance = 64
)

// FieldError reports an invalid setting.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrInvalid
}

// AtlasSettings configures texture atlas packing.
type AtlasSettings struct {
	PageSize int     `yaml:"page_size"`
	MaxPages int     `yaml:"max_pages"`
	Inset    float32 `yaml:"inset"`
	Gutter   int     `yaml:"gutter"`
	TileSize int     `yaml:"tile_size"`
}

// LightingSettings holds the static ambient lighting coefficients.
type LightingSettings struct {
	Ambient    float32 `yaml:"ambient"`
	Up         float32 `yaml:"up"`
	Down       float32 `yaml:"down"`
	North      float32 `yaml:"north"`
	South      float32 `yaml:"south"`
	East       float32 `yaml:"east"`
	West       float32 `yaml:"west"`
	AOStrength float32 `yaml:"ao_strength"`
}

// Settings is the complete renderer configuration.
type Settings struct {
	RenderDistance    int     `yaml:"render_distance"`
	DistanceMetric    string  `yaml:"distance_metric"`
	RebuildBudget     int     `yaml:"rebuild_budget"` // 0 means no cap
	MaxResidentMeshes int     `yaml:"max_resident_meshes"`
	MeshWorkers       int     `yaml:"mesh_workers"`
	MeshQueue         int     `yaml:"mesh_queue"`
	StalePolicy       string  `yaml:"stale_policy"`
	FrustumMargin     float32 `yaml:"frustum_margin"`
	FramesInFlight    int     `yaml:"frames_in_flight"`

	Atlas    AtlasSettings    `yaml:"atlas"`
	Lighting LightingSettings `yaml:"lighting"`
}

// Default returns the default settings.
func Default() Settings {
	return Settings{
		RenderDistance:    8,
		DistanceMetric:    "chebyshev",
		RebuildBudget:     8,
		MaxResidentMeshes: 4096,
		MeshWorkers:       max(runtime.NumCPU()-1, 1),
		MeshQueue:         64,
		StalePolicy:       "stale-ok",
		FrustumMargin:     1.0,
		FramesInFlight:    1,
		Atlas: AtlasSettings{
			PageSize: 1024,
			MaxPages: 4,
			Inset:    0.5,
		},
		Lighting: LightingSettings{
			Ambient:    1.0,
			Up:         1.0,
			Down:       0.5,
			North:      0.8,
			South:      0.8,
			East:       0.6,
			West:       0.6,
			AOStrength: 0.2,
		},
	}
}

// Validate checks every field and returns the first problem found.
func (s Settings) Validate() error {
	switch {
	case s.RenderDistance < MinRenderDistance || s.RenderDistance > MaxRenderDistance:
		return &FieldError{"render_distance", fmt.Sprintf("must be in [%d, %d]", MinRenderDistance, MaxRenderDistance)}
	case s.DistanceMetric != "chebyshev" && s.DistanceMetric != "euclidean":
		return &FieldError{"distance_metric", "must be chebyshev or euclidean"}
	case s.RebuildBudget < 0:
		return &FieldError{"rebuild_budget", "must not be negative"}
	case s.MaxResidentMeshes < 1:
		return &FieldError{"max_resident_meshes", "must be at least 1"}
	case s.MeshWorkers < 1:
		return &FieldError{"mesh_workers", "must be at least 1"}
	case s.MeshQueue < 1:
		return &FieldError{"mesh_queue", "must be at least 1"}
	case s.StalePolicy != "stale-ok" && s.StalePolicy != "pop-in":
		return &FieldError{"stale_policy", "must be stale-ok or pop-in"}
	case s.FrustumMargin < 0:
		return &FieldError{"frustum_margin", "must not be negative"}
	case s.FramesInFlight < 0:
		return &FieldError{"frames_in_flight", "must not be negative"}
	case s.Atlas.PageSize < 1:
		return &FieldError{"atlas.page_size", "must be positive"}
	case s.Atlas.MaxPages < 1:
		return &FieldError{"atlas.max_pages", "must be positive"}
	case s.Atlas.Inset < 0:
		return &FieldError{"atlas.inset", "must not be negative"}
	case s.Atlas.Gutter < 0:
		return &FieldError{"atlas.gutter", "must not be negative"}
	case s.Atlas.TileSize < 0:
		return &FieldError{"atlas.tile_size", "must not be negative"}
	case s.Lighting.AOStrength < 0 || s.Lighting.AOStrength > 1.0/3:
		return &FieldError{"lighting.ao_strength", "must be in [0, 1/3]"}
	}
	l := s.Lighting
	for _, v := range []float32{l.Ambient, l.Up, l.Down, l.North, l.South, l.East, l.West} {
		if v < 0 {
			return &FieldError{"lighting", "coefficients must not be negative"}
		}
	}
	return nil
}

// Parse reads YAML settings. Omitted fields keep their defaults; unknown
// fields are rejected.
func Parse(data []byte) (Settings, error) {
	s := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("config: parse: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Load reads and parses a settings file.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

var (
	mu      sync.RWMutex
	current = Default()
)

// Current returns the process-wide settings.
func Current() Settings {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Apply validates s and makes it the process-wide settings.
func Apply(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	mu.Lock()
	current = s
	mu.Unlock()
	return nil
}

// GetRenderDistance returns the current render distance in chunks
func GetRenderDistance() int {
	mu.RLock()
	defer mu.RUnlock()
	return current.RenderDistance
}

// SetRenderDistance sets the render distance in chunks, clamped to the
// supported range.
func SetRenderDistance(distance int) {
	distance = max(MinRenderDistance, min(distance, MaxRenderDistance))
	mu.Lock()
	current.RenderDistance = distance
	mu.Unlock()
}

// GetChunkLoadRadius returns the radius chunks are streamed in.
func GetChunkLoadRadius() int {
	return GetRenderDistance() + 1
}

// GetChunkEvictRadius returns the radius beyond which chunks are unloaded.
func GetChunkEvictRadius() int {
	return GetRenderDistance() * 2
}
