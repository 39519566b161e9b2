package world

import "fmt"

// Map holds the hex grid for one world, keyed by coordinate.
type Map struct {
	Hexes  map[HexCoord]*Hex `json:"-"`
	Radius int               `json:"radius"`
}

// NewMap creates an empty map with the given radius.
// A hex grid of radius R contains hexes where max(|q|, |r|, |s|) <= R.
func NewMap(radius int) *Map {
	return &Map{
		Hexes:  make(map[HexCoord]*Hex),
		Radius: radius,
	}
}

// Get returns the hex at the given coordinate, or nil if out of bounds.
func (m *Map) Get(coord HexCoord) *Hex {
	return m.Hexes[coord]
}

// Set places a hex at the given coordinate.
func (m *Map) Set(hex *Hex) {
	m.Hexes[hex.Coord] = hex
}

// InBounds returns true if the coordinate is within the map radius.
func (m *Map) InBounds(coord HexCoord) bool {
	q := abs(coord.Q)
	r := abs(coord.R)
	s := abs(coord.S())
	max := q
	if r > max {
		max = r
	}
	if s > max {
		max = s
	}
	return max <= m.Radius
}

// HexCount returns the total number of hexes in the map.
func (m *Map) HexCount() int {
	return len(m.Hexes)
}

// Index builds a coordinate-keyed map from a flat hex slice, as stored
// in the world-state aggregate.
func Index(hexes []*Hex, radius int) *Map {
	m := NewMap(radius)
	for _, h := range hexes {
		m.Set(h)
	}
	return m
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(radius=%d, hexes=%d)", m.Radius, m.HexCount())
}
