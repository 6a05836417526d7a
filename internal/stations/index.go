package stations

import (
	"fmt"
	"math"
	"sort"

	"commuterbliss/internal/geo"
)

// Index is an immutable set of stations supporting exact code lookup and
// nearest-station search. It is safe for concurrent use.
type Index struct {
	byCode map[string]Station
	sorted []Station // by code
	root   *node
}

// node is a k-d tree node over unit-sphere vectors.
type node struct {
	station     Station
	point       geo.Vector
	axis        int
	left, right *node
}

type entry struct {
	station Station
	point   geo.Vector
}

// NewIndex validates the station set and builds the search tree.
// Codes are normalized to upper case; invalid or duplicate codes are rejected.
func NewIndex(list []Station) (*Index, error) {
	ix := &Index{byCode: make(map[string]Station, len(list))}
	entries := make([]entry, 0, len(list))

	for _, s := range list {
		s.Code = NormalizeCode(s.Code)
		if !ValidCode(s.Code) {
			return nil, fmt.Errorf("invalid station code %q", s.Code)
		}
		if _, dup := ix.byCode[s.Code]; dup {
			return nil, fmt.Errorf("duplicate station code %s", s.Code)
		}
		if s.Lat < -90 || s.Lat > 90 || s.Lon < -180 || s.Lon > 180 {
			return nil, fmt.Errorf("station %s: coordinates out of range (%f, %f)", s.Code, s.Lat, s.Lon)
		}
		ix.byCode[s.Code] = s
		ix.sorted = append(ix.sorted, s)
		entries = append(entries, entry{station: s, point: geo.UnitVector(s.Lat, s.Lon)})
	}

	sort.Slice(ix.sorted, func(i, j int) bool { return ix.sorted[i].Code < ix.sorted[j].Code })
	ix.root = build(entries, 0)
	return ix, nil
}

func build(entries []entry, depth int) *node {
	if len(entries) == 0 {
		return nil
	}
	axis := depth % 3
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].point[axis], entries[j].point[axis]
		if a != b {
			return a < b
		}
		return entries[i].station.Code < entries[j].station.Code
	})
	mid := len(entries) / 2
	return &node{
		station: entries[mid].station,
		point:   entries[mid].point,
		axis:    axis,
		left:    build(entries[:mid], depth+1),
		right:   build(entries[mid+1:], depth+1),
	}
}

// Len returns the number of stations.
func (ix *Index) Len() int {
	return len(ix.sorted)
}

// All returns every station ordered by code.
func (ix *Index) All() []Station {
	out := make([]Station, len(ix.sorted))
	copy(out, ix.sorted)
	return out
}

// LookupByCode finds a station by code, ignoring case.
func (ix *Index) LookupByCode(code string) (Station, bool) {
	s, ok := ix.byCode[NormalizeCode(code)]
	return s, ok
}

// tieTolerance is the chord length on the unit sphere below which two
// distances count as equal, about 6mm on the ground.
const tieTolerance = 1e-9

// Nearest returns the station with the smallest great-circle distance to
// the given coordinate. Stations whose distances differ by less than
// tieTolerance are equidistant and resolve to the lowest code.
func (ix *Index) Nearest(lat, lon float64) (Station, bool) {
	if ix.root == nil {
		return Station{}, false
	}
	b := best{dist: math.Inf(1)}
	ix.root.nearest(geo.UnitVector(lat, lon), &b)
	return b.station, true
}

type best struct {
	station Station
	dist    float64 // chord length
}

// consider replaces the current best when s is closer, or ties on
// distance with a lower code.
func (b *best) consider(s Station, dist float64) {
	switch {
	case dist < b.dist-tieTolerance:
	case dist <= b.dist+tieTolerance && s.Code < b.station.Code:
	default:
		return
	}
	b.station = s
	if dist < b.dist {
		b.dist = dist
	}
}

func (n *node) nearest(q geo.Vector, b *best) {
	if n == nil {
		return
	}
	b.consider(n.station, math.Sqrt(geo.ChordSq(q, n.point)))

	diff := q[n.axis] - n.point[n.axis]
	near, far := n.left, n.right
	if diff > 0 {
		near, far = n.right, n.left
	}
	near.nearest(q, b)
	// Tied candidates across the split plane are still visited.
	if math.Abs(diff) <= b.dist+tieTolerance {
		far.nearest(q, b)
	}
}
