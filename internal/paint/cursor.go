package paint

import (
	"iter"

	"github.com/jask/canvaspaint/internal/palette"
	"github.com/jask/canvaspaint/internal/raster"
)

const (
	DefaultTransparencyThreshold = 100
	DefaultWhiteThreshold        = 250
)

// Filter decides which raster cells are worth painting.
type Filter struct {
	// cells with alpha below this are skipped
	TransparencyThreshold uint8
	// cells with all three channels at or above this are skipped
	WhiteThreshold uint8
}

func DefaultFilter() Filter {
	return Filter{TransparencyThreshold: DefaultTransparencyThreshold, WhiteThreshold: DefaultWhiteThreshold}
}

// Paintable reports whether a sample should be painted.
func (f Filter) Paintable(rgb [3]uint8, alpha uint8) bool {
	if alpha < f.TransparencyThreshold {
		return false
	}
	w := f.WhiteThreshold
	return !(rgb[0] >= w && rgb[1] >= w && rgb[2] >= w)
}

// CountPaintable counts the cells of r that Filter keeps.
func CountPaintable(r *raster.Raster, f Filter) int {
	n := 0
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			if f.Paintable(r.RGBA(x, y)) {
				n++
			}
		}
	}
	return n
}

// Cursor is the next unvisited raster coordinate in row-major order.
type Cursor struct {
	Row int
	Col int
}

// Cell is one paintable raster cell in raster-local coordinates.
type Cell struct {
	X     int
	Y     int
	Color int
}

// Scanner walks a raster row-major from a resume point, yielding only
// paintable cells. Restarting from any saved Position yields the remainder
// of the same sequence.
type Scanner struct {
	r      *raster.Raster
	filter Filter
	match  *palette.Matcher
	pos    Cursor
}

func NewScanner(r *raster.Raster, f Filter, m *palette.Matcher, from Cursor) *Scanner {
	s := &Scanner{r: r, filter: f, match: m, pos: from}
	if s.pos.Row < 0 || s.pos.Col < 0 {
		s.pos = Cursor{}
	}
	if s.pos.Col >= r.Width {
		s.pos = Cursor{Row: s.pos.Row + 1}
	}
	return s
}

// Position is the resume point: the next cell not yet consumed.
func (s *Scanner) Position() Cursor { return s.pos }

// Current moves past skip-eligible cells and returns the next paintable one
// without consuming it. ok is false once the raster is exhausted.
func (s *Scanner) Current() (Cell, bool) {
	for s.pos.Row < s.r.Height {
		rgb, a := s.r.RGBA(s.pos.Col, s.pos.Row)
		if s.filter.Paintable(rgb, a) {
			return Cell{X: s.pos.Col, Y: s.pos.Row, Color: s.match.Match(rgb)}, true
		}
		s.step()
	}
	return Cell{}, false
}

// Advance consumes the current cell.
func (s *Scanner) Advance() {
	if s.pos.Row < s.r.Height {
		s.step()
	}
}

func (s *Scanner) step() {
	s.pos.Col++
	if s.pos.Col >= s.r.Width {
		s.pos.Col = 0
		s.pos.Row++
	}
}

// Cells consumes the scanner lazily.
func (s *Scanner) Cells() iter.Seq[Cell] {
	return func(yield func(Cell) bool) {
		for {
			c, ok := s.Current()
			if !ok {
				return
			}
			s.Advance()
			if !yield(c) {
				return
			}
		}
	}
}
