// Package blockmodel describes block geometry as a list of axis-aligned
// boxes in the 0..16 block model space.
package blockmodel

import "sort"

// Element is one box of a block model. From and To are corners in 0..16
// model units. Faces is keyed by direction name ("north", "up", ...); a
// missing face is not drawn.
type Element struct {
	From  [3]float32      `json:"from"`
	To    [3]float32      `json:"to"`
	Shade *bool           `json:"shade"`
	Faces map[string]Face `json:"faces"`
}

// Face is one textured side of an Element.
type Face struct {
	// UV is a sub-rectangle of the texture in 0..16 units. All zeros selects
	// the rectangle matching the element's extent on that face.
	UV      [4]float32 `json:"uv"`
	Texture string     `json:"texture"`
	// CullFace names the block side whose neighbour hides this face. Empty
	// means the face is always drawn.
	CullFace string `json:"cullface"`
}

const epsilon = 0.001

// IsFullCube reports whether the element spans the whole block.
func (e Element) IsFullCube() bool {
	for i := 0; i < 3; i++ {
		if e.From[i] > epsilon || e.From[i] < -epsilon {
			return false
		}
		if e.To[i] < 16-epsilon || e.To[i] > 16+epsilon {
			return false
		}
	}
	return true
}

// Shaded reports whether the element receives ambient occlusion. Elements
// are shaded unless Shade is explicitly false.
func (e Element) Shaded() bool {
	return e.Shade == nil || *e.Shade
}

// HasFullCube reports whether any element spans the whole block.
func HasFullCube(elems []Element) bool {
	for _, e := range elems {
		if e.IsFullCube() {
			return true
		}
	}
	return false
}

// Textures returns the sorted, de-duplicated texture identifiers referenced
// by the elements.
func Textures(elems []Element) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range elems {
		for _, f := range e.Faces {
			if f.Texture == "" {
				continue
			}
			if _, ok := seen[f.Texture]; ok {
				continue
			}
			seen[f.Texture] = struct{}{}
			out = append(out, f.Texture)
		}
	}
	sort.Strings(out)
	return out
}
