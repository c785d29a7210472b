package world

import (
	"math"
)

// TerrainGenerator produces block grids for chunks that have no stored data.
type TerrainGenerator interface {
	HeightAt(worldX, worldZ int) int
	Fill(coord ChunkCoord) *Grid
}

// Palette names the blocks a generator places. The registry assigns the ids,
// so generators never hard-code block types.
type Palette struct {
	Top    BlockID // surface block
	Filler BlockID // below the surface
	Base   BlockID // world floor at y == 0
}

// Generator builds a heightmap terrain from octave value noise.
type Generator struct {
	palette     Palette
	seed        int64
	scale       float64
	baseHeight  int
	amp         float64
	octaves     int
	persistence float64
	lacunarity  float64
}

// NewGenerator creates a new generator with default settings.
func NewGenerator(seed int64, palette Palette) *Generator {
	return &Generator{
		palette:     palette,
		seed:        seed,
		scale:       1.0 / 64.0,
		baseHeight:  24,
		amp:         32,
		octaves:     4,
		persistence: 0.5,
		lacunarity:  2.0,
	}
}

// HeightAt computes world surface height (block Y) at world X,Z.
func (g *Generator) HeightAt(worldX, worldZ int) int {
	x := float64(worldX) * g.scale
	z := float64(worldZ) * g.scale
	n := octaveNoise2D(x, z, g.seed, g.octaves, g.persistence, g.lacunarity)
	height := float64(g.baseHeight) + (n-0.5)*g.amp
	if height < 0 {
		height = 0
	}
	return int(math.Floor(height))
}

// Fill returns the blocks of the chunk at coord.
func (g *Generator) Fill(coord ChunkCoord) *Grid {
	return fillColumns(coord, g.HeightAt, g.palette)
}

// FlatGenerator produces a flat world at a fixed height.
type FlatGenerator struct {
	Height  int
	Palette Palette
}

// NewFlatGenerator creates a flat generator.
func NewFlatGenerator(height int, palette Palette) *FlatGenerator {
	return &FlatGenerator{Height: height, Palette: palette}
}

// HeightAt returns the fixed height.
func (g *FlatGenerator) HeightAt(worldX, worldZ int) int {
	return g.Height
}

// Fill returns the blocks of the chunk at coord.
func (g *FlatGenerator) Fill(coord ChunkCoord) *Grid {
	return fillColumns(coord, g.HeightAt, g.Palette)
}

// fillColumns fills every column up to its surface height. Blocks below world
// y == 0 are left as air.
func fillColumns(coord ChunkCoord, heightAt func(x, z int) int, p Palette) *Grid {
	grid := new(Grid)
	baseY := coord.Y * ChunkSize
	for lx := range ChunkSize {
		for lz := range ChunkSize {
			height := heightAt(coord.X*ChunkSize+lx, coord.Z*ChunkSize+lz)
			topLocal := height - baseY
			if topLocal < 0 {
				continue
			}
			limit := min(topLocal, ChunkSize-1)
			for ly := 0; ly <= limit; ly++ {
				worldY := baseY + ly
				switch {
				case worldY < 0:
					continue
				case worldY == 0:
					grid.Set(lx, ly, lz, p.Base)
				case ly == topLocal:
					grid.Set(lx, ly, lz, p.Top)
				default:
					grid.Set(lx, ly, lz, p.Filler)
				}
			}
		}
	}
	return grid
}
