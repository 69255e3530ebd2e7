// Package paint is the paint orchestration engine: it walks a raster,
// gates writes on the remote charge economy, classifies outcomes and waits
// out verification challenges.
package paint

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jask/canvaspaint/internal/palette"
	"github.com/jask/canvaspaint/internal/raster"
	"github.com/jask/canvaspaint/internal/remote"
)

var ErrPrecondition = errors.New("paint: precondition violated")

// Point is a remote canvas coordinate pair.
type Point = remote.Point

// JobSpec is everything a job needs. Origin and Region are pointers so a
// missing position is distinguishable from (0,0).
type JobSpec struct {
	Raster  *raster.Raster
	Palette palette.Palette
	Origin  *Point
	Region  *Point
	Filter  Filter
}

// Job is one image placed on the canvas. Only Cursor and the counters
// change during a run.
type Job struct {
	Raster *raster.Raster
	Origin Point
	Region Point
	Filter Filter

	Cursor   Cursor
	Total    int
	Painted  int
	Rejected int

	matcher *palette.Matcher
}

// NewJob validates spec and counts the paintable cells.
func NewJob(spec JobSpec) (*Job, error) {
	switch {
	case spec.Raster == nil:
		return nil, fmt.Errorf("%w: no image loaded", ErrPrecondition)
	case len(spec.Palette) == 0:
		return nil, fmt.Errorf("%w: empty palette", ErrPrecondition)
	case spec.Origin == nil:
		return nil, fmt.Errorf("%w: no start position", ErrPrecondition)
	case spec.Region == nil:
		return nil, fmt.Errorf("%w: no region", ErrPrecondition)
	}
	m, err := palette.NewMatcher(spec.Palette)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}
	j := &Job{
		Raster:  spec.Raster,
		Origin:  *spec.Origin,
		Region:  *spec.Region,
		Filter:  spec.Filter,
		matcher: m,
	}
	j.Total = CountPaintable(j.Raster, j.Filter)
	return j, nil
}

func (j *Job) Palette() palette.Palette { return j.matcher.Palette() }

// Remaining is what ETA is computed from.
func (j *Job) Remaining() int { return max(j.Total-j.Painted, 0) }

// Resize swaps in a scaled raster, recounts Total and starts over.
func (j *Job) Resize(w, h int) error {
	r, err := j.Raster.Resize(w, h)
	if err != nil {
		return err
	}
	j.Raster = r
	j.Total = CountPaintable(r, j.Filter)
	j.Painted = 0
	j.Rejected = 0
	j.Cursor = Cursor{}
	return nil
}

// Scanner starts a scan at the job's cursor.
func (j *Job) Scanner() *Scanner {
	return NewScanner(j.Raster, j.Filter, j.matcher, j.Cursor)
}

// Canvas maps a raster-local cell to remote coordinates.
func (j *Job) Canvas(c Cell) Point {
	return Point{X: j.Origin.X + c.X, Y: j.Origin.Y + c.Y}
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
