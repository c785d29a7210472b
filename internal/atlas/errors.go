package atlas

import (
	"errors"
	"strconv"
)

// Sentinel errors for the atlas package.
var (
	// ErrAtlasOverflow is returned when the images do not fit in the
	// configured number of pages.
	ErrAtlasOverflow = errors.New("atlas: images exceed atlas capacity")

	// ErrImageTooLarge is returned when a single image is larger than a page.
	ErrImageTooLarge = errors.New("atlas: image larger than atlas page")

	// ErrDuplicateImage is returned when two images share an identifier.
	ErrDuplicateImage = errors.New("atlas: duplicate texture identifier")

	// ErrInvalidImage is returned for images with no pixels.
	ErrInvalidImage = errors.New("atlas: invalid image")
)

// OverflowError reports how far an atlas build exceeded its capacity.
type OverflowError struct {
	Needed   int // pixel area required, gutters included
	Capacity int // pixel area of MaxPages pages
	Pages    int // configured maximum page count
	// Placed is the number of images packed before running out of room;
	// zero when the area check failed before packing.
	Placed int
}

func (e *OverflowError) Error() string {
	return "atlas: images exceed atlas capacity: need " + strconv.Itoa(e.Needed) +
		" px, capacity " + strconv.Itoa(e.Capacity) + " px in " + strconv.Itoa(e.Pages) + " page(s)"
}

// Is makes errors.Is(err, ErrAtlasOverflow) match.
func (e *OverflowError) Is(target error) bool {
	return target == ErrAtlasOverflow
}

// ConfigError is returned when Options are invalid.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "atlas: invalid options." + e.Field + ": " + e.Reason
}
