// Package zone maps instantaneous power readings onto the configured power
// zones.
//
// Zones are matched in configuration order and the first zone whose range
// contains the reading wins. Ranges may overlap or leave gaps: with
// overlapping zones the earlier zone shadows the later one for the shared
// watts, whatever the "better" fit would be. Use Table.Overlaps to report
// such configurations.
package zone

import (
	"errors"
	"fmt"
	"math"

	"lautenbacher.net/power2color/led"
)

// Unbounded is the MaxWatt sentinel of an open ended top zone.
const Unbounded uint32 = math.MaxUint32

// UnknownZone is returned by Classify when no zone matches.
const UnknownZone = "Unknown Zone"

var (
	ErrNoZones      = errors.New("no power zones configured")
	ErrInvalidRange = errors.New("invalid power zone range")
)

// Definition is a single configured power zone. Both bounds are inclusive.
type Definition struct {
	Name    string
	MinWatt uint32
	MaxWatt uint32
	Color   led.Led
}

// Contains reports whether watts lies within the zone.
func (d Definition) Contains(watts uint32) bool {
	if watts < d.MinWatt {
		return false
	}
	return d.MaxWatt == Unbounded || watts <= d.MaxWatt
}

func (d Definition) String() string {
	if d.MaxWatt == Unbounded {
		return fmt.Sprintf("%s: %dW - inf", d.Name, d.MinWatt)
	}
	return fmt.Sprintf("%s: %dW - %dW", d.Name, d.MinWatt, d.MaxWatt)
}

// Table is an immutable, ordered list of zones.
type Table struct {
	zones   []Definition
	unknown led.Led
}

// NewTable validates defs and returns a table holding a private copy.
// unknown is the colour reported for readings outside every zone.
func NewTable(defs []Definition, unknown led.Led) (*Table, error) {
	if len(defs) == 0 {
		return nil, ErrNoZones
	}
	zones := make([]Definition, len(defs))
	copy(zones, defs)
	for i, z := range zones {
		if z.MinWatt > z.MaxWatt {
			return nil, fmt.Errorf("%w: zone %d (%q) has min %d > max %d", ErrInvalidRange, i+1, z.Name, z.MinWatt, z.MaxWatt)
		}
	}
	return &Table{zones: zones, unknown: unknown}, nil
}

// Classify returns the name and colour of the first zone containing watts,
// or UnknownZone and the unknown colour.
func (t *Table) Classify(watts uint32) (string, led.Led) {
	for _, z := range t.zones {
		if z.Contains(watts) {
			return z.Name, z.Color
		}
	}
	return UnknownZone, t.unknown
}

// Zones returns a copy of the zone list in configuration order.
func (t *Table) Zones() []Definition {
	ret := make([]Definition, len(t.zones))
	copy(ret, t.zones)
	return ret
}

// Overlap names two zones sharing at least one watt value. Earlier wins
// for every shared value.
type Overlap struct {
	Earlier Definition
	Later   Definition
}

// Overlaps lists every pair of zones whose ranges intersect.
func (t *Table) Overlaps() []Overlap {
	var ret []Overlap
	for i := 0; i < len(t.zones); i++ {
		for j := i + 1; j < len(t.zones); j++ {
			a, b := t.zones[i], t.zones[j]
			if a.MinWatt <= b.MaxWatt && b.MinWatt <= a.MaxWatt {
				ret = append(ret, Overlap{Earlier: a, Later: b})
			}
		}
	}
	return ret
}
