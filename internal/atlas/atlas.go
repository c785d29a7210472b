// Package atlas packs block face images into shared texture pages and maps
// texture identifiers to normalized UV rectangles.
package atlas

import (
	"fmt"
	"image"
	"image/color"
	"sort"
	"sync"

	"golang.org/x/image/draw"

	"voxelrender/internal/logging"
)

// PlaceholderID names the checkerboard texture every atlas carries. Faces
// whose texture is missing are drawn with it.
const PlaceholderID = "voxelrender:missing"

// Default atlas settings.
const (
	DefaultPageSize = 1024
	DefaultMaxPages = 4
	DefaultInset    = 0.5
)

// Image is a named source image to pack.
type Image struct {
	ID  string
	Img image.Image
}

// Options configures an atlas build.
type Options struct {
	// PageSize is the width and height of every page in pixels.
	PageSize int
	// MaxPages bounds the number of pages; exceeding it fails the build.
	MaxPages int
	// Inset shrinks every UV rectangle by this many texels on each side.
	Inset float32
	// Gutter pixels are extruded around every image from its edge texels.
	Gutter int
	// TileSize, when positive, scales every image to TileSize×TileSize.
	TileSize int
}

// DefaultOptions returns the default atlas options.
func DefaultOptions() Options {
	return Options{
		PageSize: DefaultPageSize,
		MaxPages: DefaultMaxPages,
		Inset:    DefaultInset,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	switch {
	case o.PageSize <= 0:
		return &ConfigError{Field: "PageSize", Reason: "must be positive"}
	case o.MaxPages <= 0:
		return &ConfigError{Field: "MaxPages", Reason: "must be positive"}
	case o.Gutter < 0:
		return &ConfigError{Field: "Gutter", Reason: "must not be negative"}
	case o.Inset < 0:
		return &ConfigError{Field: "Inset", Reason: "must not be negative"}
	case o.TileSize < 0:
		return &ConfigError{Field: "TileSize", Reason: "must not be negative"}
	}
	return nil
}

// Entry is the placement of one texture.
type Entry struct {
	U0, V0, U1, V1 float32
	Page           int
	// Pixel rectangle of the image inside its page, gutters excluded.
	X, Y, W, H int
}

// Atlas is an immutable set of packed pages. Build returns a complete atlas
// or an error, never a partial one.
type Atlas struct {
	opts        Options
	pages       []*image.RGBA
	entries     map[string]Entry
	placeholder Entry
	epoch       uint64
	utilization []float64

	missed sync.Map // texture id -> struct{}, for warn-once
}

type item struct {
	id   string
	src  image.Image
	w, h int // cell size, gutters included
}

// Build packs images into pages. Images are placed in decreasing height,
// then width, then identifier order, so the same image set always yields
// the same placement regardless of input order.
func Build(images []Image, opts Options) (*Atlas, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(images))
	items := make([]item, 0, len(images))
	for _, im := range images {
		if im.ID == PlaceholderID {
			return nil, fmt.Errorf("%w: %q is reserved", ErrDuplicateImage, im.ID)
		}
		if _, ok := seen[im.ID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateImage, im.ID)
		}
		seen[im.ID] = struct{}{}
		it, err := newItem(im.ID, im.Img, opts)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.h != b.h {
			return a.h > b.h
		}
		if a.w != b.w {
			return a.w > b.w
		}
		return a.id < b.id
	})

	tile := opts.TileSize
	if tile == 0 {
		tile = 16
	}
	ph, err := newItem(PlaceholderID, checker(tile), opts)
	if err != nil {
		return nil, err
	}
	items = append([]item{ph}, items...)

	capacity := opts.MaxPages * opts.PageSize * opts.PageSize
	needed := 0
	for _, it := range items {
		if it.w > opts.PageSize || it.h > opts.PageSize {
			return nil, fmt.Errorf("%w: %q needs %dx%d, page is %d: %w",
				ErrImageTooLarge, it.id, it.w, it.h, opts.PageSize, ErrAtlasOverflow)
		}
		needed += it.w * it.h
	}
	if needed > capacity {
		return nil, &OverflowError{Needed: needed, Capacity: capacity, Pages: opts.MaxPages}
	}

	type placement struct {
		it   item
		page int
		r    Rect
	}
	var packers []*guillotine
	placed := make([]placement, 0, len(items))
	for _, it := range items {
		page := -1
		var r Rect
		for i, p := range packers {
			if pr, ok := p.insert(it.w, it.h); ok {
				page, r = i, pr
				break
			}
		}
		if page < 0 {
			if len(packers) == opts.MaxPages {
				return nil, &OverflowError{Needed: needed, Capacity: capacity, Pages: opts.MaxPages, Placed: len(placed)}
			}
			p := newGuillotine(opts.PageSize)
			packers = append(packers, p)
			page = len(packers) - 1
			r, _ = p.insert(it.w, it.h)
		}
		placed = append(placed, placement{it: it, page: page, r: r})
	}

	a := &Atlas{
		opts:    opts,
		pages:   make([]*image.RGBA, len(packers)),
		entries: make(map[string]Entry, len(placed)),
	}
	for i, p := range packers {
		a.pages[i] = image.NewRGBA(image.Rect(0, 0, opts.PageSize, opts.PageSize))
		a.utilization = append(a.utilization, p.utilization())
	}
	for _, pl := range placed {
		inner := image.Rect(
			pl.r.X+opts.Gutter, pl.r.Y+opts.Gutter,
			pl.r.X+pl.r.W-opts.Gutter, pl.r.Y+pl.r.H-opts.Gutter,
		)
		page := a.pages[pl.page]
		draw.Copy(page, inner.Min, pl.it.src, pl.it.src.Bounds(), draw.Src, nil)
		extrude(page, inner, opts.Gutter)

		e := entryFor(inner, pl.page, opts)
		if pl.it.id == PlaceholderID {
			a.placeholder = e
		}
		a.entries[pl.it.id] = e
	}

	logging.Logger().Info("atlas built", "images", len(images), "pages", len(a.pages), "page_size", opts.PageSize)
	return a, nil
}

func newItem(id string, src image.Image, opts Options) (item, error) {
	if src == nil || src.Bounds().Empty() {
		return item{}, fmt.Errorf("%w: %q has no pixels", ErrInvalidImage, id)
	}
	if opts.TileSize > 0 {
		b := src.Bounds()
		if b.Dx() != opts.TileSize || b.Dy() != opts.TileSize {
			dst := image.NewRGBA(image.Rect(0, 0, opts.TileSize, opts.TileSize))
			draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
			src = dst
		}
	}
	b := src.Bounds()
	return item{id: id, src: src, w: b.Dx() + 2*opts.Gutter, h: b.Dy() + 2*opts.Gutter}, nil
}

func entryFor(r image.Rectangle, page int, opts Options) Entry {
	size := float32(opts.PageSize)
	inset := opts.Inset
	// An inset wider than half the image would invert the rectangle.
	if half := float32(min(r.Dx(), r.Dy())) / 2; inset > half {
		inset = half
	}
	return Entry{
		U0:   (float32(r.Min.X) + inset) / size,
		V0:   (float32(r.Min.Y) + inset) / size,
		U1:   (float32(r.Max.X) - inset) / size,
		V1:   (float32(r.Max.Y) - inset) / size,
		Page: page,
		X:    r.Min.X,
		Y:    r.Min.Y,
		W:    r.Dx(),
		H:    r.Dy(),
	}
}

// extrude repeats the edge texels of inner outwards by g pixels so that
// filtering near the border samples the image's own colors.
func extrude(page *image.RGBA, inner image.Rectangle, g int) {
	for k := 1; k <= g; k++ {
		top := image.Rect(inner.Min.X, inner.Min.Y, inner.Max.X, inner.Min.Y+1)
		draw.Copy(page, image.Pt(inner.Min.X, inner.Min.Y-k), page, top, draw.Src, nil)
		bottom := image.Rect(inner.Min.X, inner.Max.Y-1, inner.Max.X, inner.Max.Y)
		draw.Copy(page, image.Pt(inner.Min.X, inner.Max.Y-1+k), page, bottom, draw.Src, nil)
	}
	for k := 1; k <= g; k++ {
		left := image.Rect(inner.Min.X, inner.Min.Y-g, inner.Min.X+1, inner.Max.Y+g)
		draw.Copy(page, image.Pt(inner.Min.X-k, inner.Min.Y-g), page, left, draw.Src, nil)
		right := image.Rect(inner.Max.X-1, inner.Min.Y-g, inner.Max.X, inner.Max.Y+g)
		draw.Copy(page, image.Pt(inner.Max.X-1+k, inner.Min.Y-g), page, right, draw.Src, nil)
	}
}

// checker returns a magenta and black checkerboard.
func checker(size int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	magenta := color.RGBA{R: 0xff, B: 0xff, A: 0xff}
	black := color.RGBA{A: 0xff}
	half := max(size/2, 1)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/half+y/half)%2 == 0 {
				img.SetRGBA(x, y, magenta)
			} else {
				img.SetRGBA(x, y, black)
			}
		}
	}
	return img
}

// Lookup returns the entry for a texture identifier.
func (a *Atlas) Lookup(id string) (Entry, bool) {
	e, ok := a.entries[id]
	return e, ok
}

// UV returns the entry for id, falling back to the placeholder when id was
// never packed. The first miss per identifier is logged.
func (a *Atlas) UV(id string) (Entry, bool) {
	if e, ok := a.entries[id]; ok {
		return e, true
	}
	if _, loaded := a.missed.LoadOrStore(id, struct{}{}); !loaded {
		logging.Logger().Warn("missing atlas entry, using placeholder", "texture", id)
	}
	return a.placeholder, false
}

// Placeholder returns the missing-texture entry.
func (a *Atlas) Placeholder() Entry { return a.placeholder }

// Pages returns the page images. Callers must not modify them.
func (a *Atlas) Pages() []*image.RGBA { return a.pages }

// PageSize returns the width and height of every page.
func (a *Atlas) PageSize() int { return a.opts.PageSize }

// Len returns the number of packed textures, placeholder included.
func (a *Atlas) Len() int { return len(a.entries) }

// Epoch returns the install count of the Holder that published this atlas.
// Atlases not published through a Holder report zero.
func (a *Atlas) Epoch() uint64 { return a.epoch }

// Utilization returns the used fraction of each page.
func (a *Atlas) Utilization() []float64 { return a.utilization }

// IDs returns the packed texture identifiers in sorted order.
func (a *Atlas) IDs() []string {
	ids := make([]string, 0, len(a.entries))
	for id := range a.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
