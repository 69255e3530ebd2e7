// Package palette holds the set of colours the remote canvas accepts and maps
// arbitrary RGB samples onto it.
package palette

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/agnivade/levenshtein"
	colorful "github.com/lucasb-eyer/go-colorful"
)

//go:embed default.toml
var defaultTOML []byte

var (
	ErrEmpty        = errors.New("palette: no colors")
	ErrUnknownColor = errors.New("palette: unknown color")
)

// Entry is one paintable colour. ID is opaque and only meaningful to the
// remote canvas.
type Entry struct {
	ID   int
	Name string
	RGB  [3]uint8
}

// Palette is an ordered colour set. Order matters: ties in Nearest go to the
// entry that comes first.
type Palette []Entry

type fileEntry struct {
	ID   int    `toml:"id"`
	Name string `toml:"name"`
	Hex  string `toml:"hex"`
}

type paletteFile struct {
	Color []fileEntry `toml:"color"`
}

// Default returns the built-in palette of free canvas colours.
func Default() Palette {
	p, err := Parse(defaultTOML)
	if err != nil {
		panic(fmt.Sprintf("palette: embedded default: %v", err))
	}
	return p
}

// Load reads a palette file. An empty path yields Default.
func Load(path string) (Palette, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read palette: %w", err)
	}
	return Parse(data)
}

// Parse decodes a TOML palette of [[color]] tables with id, name and hex keys.
func Parse(data []byte) (Palette, error) {
	var f paletteFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("decode palette: %w", err)
	}
	if len(f.Color) == 0 {
		return nil, ErrEmpty
	}
	seen := make(map[int]struct{}, len(f.Color))
	out := make(Palette, 0, len(f.Color))
	for _, fe := range f.Color {
		if _, dup := seen[fe.ID]; dup {
			return nil, fmt.Errorf("palette: duplicate id %d", fe.ID)
		}
		seen[fe.ID] = struct{}{}
		c, err := colorful.Hex(strings.TrimSpace(fe.Hex))
		if err != nil {
			return nil, fmt.Errorf("palette: color %d: %w", fe.ID, err)
		}
		r, g, b := c.RGB255()
		out = append(out, Entry{ID: fe.ID, Name: strings.TrimSpace(fe.Name), RGB: [3]uint8{r, g, b}})
	}
	return out, nil
}

// Exclude drops entries by id ("5") or case-insensitive name ("white").
func (p Palette) Exclude(refs []string) (Palette, error) {
	if len(refs) == 0 {
		return p, nil
	}
	drop := make(map[int]struct{}, len(refs))
	for _, ref := range refs {
		id, err := p.resolve(ref)
		if err != nil {
			return nil, err
		}
		drop[id] = struct{}{}
	}
	out := make(Palette, 0, len(p))
	for _, e := range p {
		if _, ok := drop[e.ID]; !ok {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

func (p Palette) resolve(ref string) (int, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.Atoi(ref); err == nil {
		for _, e := range p {
			if e.ID == id {
				return id, nil
			}
		}
		return 0, fmt.Errorf("%w: id %d", ErrUnknownColor, id)
	}
	want := strings.ToLower(ref)
	best, bestDist := "", math.MaxInt
	for _, e := range p {
		name := strings.ToLower(e.Name)
		if name == want {
			return e.ID, nil
		}
		if d := levenshtein.ComputeDistance(want, name); d < bestDist {
			best, bestDist = e.Name, d
		}
	}
	if best != "" && bestDist <= len(want)/2+1 {
		return 0, fmt.Errorf("%w: %q (did you mean %q?)", ErrUnknownColor, ref, best)
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownColor, ref)
}

// Nearest returns the id of the entry closest to rgb in RGB space. The
// palette must not be empty.
func (p Palette) Nearest(rgb [3]uint8) int {
	best, bestDist := 0, math.MaxInt
	for i, e := range p {
		if d := distance2(rgb, e.RGB); d < bestDist {
			best, bestDist = i, d
		}
	}
	return p[best].ID
}

// Lookup returns the entry with the given id.
func (p Palette) Lookup(id int) (Entry, bool) {
	for _, e := range p {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// squared distance keeps the ordering of the Euclidean one without sqrt
func distance2(a, b [3]uint8) int {
	dr := int(a[0]) - int(b[0])
	dg := int(a[1]) - int(b[1])
	db := int(a[2]) - int(b[2])
	return dr*dr + dg*dg + db*db
}

// Matcher memoizes Nearest per RGB triple. Not safe for concurrent use.
type Matcher struct {
	pal   Palette
	cache map[[3]uint8]int
}

func NewMatcher(p Palette) (*Matcher, error) {
	if len(p) == 0 {
		return nil, ErrEmpty
	}
	return &Matcher{pal: p, cache: make(map[[3]uint8]int)}, nil
}

func (m *Matcher) Match(rgb [3]uint8) int {
	if id, ok := m.cache[rgb]; ok {
		return id
	}
	id := m.pal.Nearest(rgb)
	m.cache[rgb] = id
	return id
}

func (m *Matcher) Palette() Palette { return m.pal }
