// Package world provides the hex grid: axial coordinates, the location
// key codec used throughout tribe and garrison data, terrain, and map
// generation.
package world

import (
	"fmt"
	"strconv"
	"strings"
)

// HexCoord represents a position on the hex grid using axial coordinates.
// The third cube coordinate s is derived: s = -q - r.
type HexCoord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// S returns the implicit third cube coordinate.
func (h HexCoord) S() int {
	return -h.Q - h.R
}

// Location keys encode an axial pair as two three-digit decimal groups
// ("QQQ.RRR") with a fixed offset added to each axis, so "027.054" is
// axial (-23, 4). The offset and padding are load-bearing: every map key
// in tribe/garrison data uses this exact format.
const (
	locOffset = 50

	// MaxAxial bounds the representable axial range. Values outside
	// ±MaxAxial would zero-pad ambiguously or go negative after the
	// offset, so they are rejected outright rather than truncated.
	MaxAxial = 49
)

// MalformedCoordinateError reports a location key that does not parse as
// two three-digit groups, or parses to an out-of-range axial pair.
type MalformedCoordinateError struct {
	Key    string
	Reason string
}

func (e *MalformedCoordinateError) Error() string {
	return fmt.Sprintf("malformed coordinate %q: %s", e.Key, e.Reason)
}

// ParseLocation decodes a location key into axial coordinates.
func ParseLocation(key string) (HexCoord, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return HexCoord{}, &MalformedCoordinateError{Key: key, Reason: "want two dot-separated groups"}
	}

	nums := [2]int{}
	for i, p := range parts {
		if len(p) != 3 {
			return HexCoord{}, &MalformedCoordinateError{Key: key, Reason: "group is not three digits"}
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return HexCoord{}, &MalformedCoordinateError{Key: key, Reason: "group is not numeric"}
		}
		nums[i] = n - locOffset
	}

	c := HexCoord{Q: nums[0], R: nums[1]}
	if abs(c.Q) > MaxAxial || abs(c.R) > MaxAxial {
		return HexCoord{}, &MalformedCoordinateError{Key: key, Reason: "axial value out of supported range"}
	}
	return c, nil
}

// FormatLocation encodes axial coordinates as a location key. Coordinates
// outside ±MaxAxial indicate a misconfigured map and are an error, never
// silently truncated.
func FormatLocation(q, r int) (string, error) {
	if abs(q) > MaxAxial || abs(r) > MaxAxial {
		return "", fmt.Errorf("axial (%d, %d) out of supported range ±%d", q, r, MaxAxial)
	}
	return fmt.Sprintf("%03d.%03d", q+locOffset, r+locOffset), nil
}

// Key returns the location key for a coordinate known to be in range.
// Panics on out-of-range input; use FormatLocation when the coordinate
// comes from external data.
func (h HexCoord) Key() string {
	key, err := FormatLocation(h.Q, h.R)
	if err != nil {
		panic(err)
	}
	return key
}

// HexNeighborDirections defines the six neighbor offsets in axial coordinates.
var HexNeighborDirections = [6]HexCoord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// Neighbors returns the six adjacent hex coordinates.
func (h HexCoord) Neighbors() [6]HexCoord {
	var result [6]HexCoord
	for i, dir := range HexNeighborDirections {
		result[i] = HexCoord{Q: h.Q + dir.Q, R: h.R + dir.R}
	}
	return result
}

// Distance returns the hex distance between two coordinates.
func Distance(a, b HexCoord) int {
	dq := abs(a.Q - b.Q)
	dr := abs(a.R - b.R)
	ds := abs(a.S() - b.S())
	// Max of the three absolute differences in cube coordinates.
	max := dq
	if dr > max {
		max = dr
	}
	if ds > max {
		max = ds
	}
	return max
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
