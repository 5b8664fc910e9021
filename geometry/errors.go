package geometry

import (
	"errors"
	"fmt"
)

// ErrInvalidShape matches every *ShapeError.
var ErrInvalidShape = errors.New("invalid geometry shape")

// ShapeError reports a geometry that is not an accepted polygonal shape.
type ShapeError struct {
	Reason string
}

func (e *ShapeError) Error() string {
	return "invalid geometry shape: " + e.Reason
}

// Is reports ErrInvalidShape as a match.
func (e *ShapeError) Is(target error) bool {
	return target == ErrInvalidShape
}

// AreaExceededError reports a region larger than the caller may analyze.
type AreaExceededError struct {
	AreaSqKm    float64
	MaxAreaSqKm float64
}

func (e *AreaExceededError) Error() string {
	return fmt.Sprintf("selected area is %.2f km², which exceeds the maximum of %.2f km² allowed for this account",
		e.AreaSqKm, e.MaxAreaSqKm)
}
