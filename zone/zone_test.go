package zone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/power2color/led"
)

var (
	red   = led.Led{Red: 255}
	green = led.Led{Green: 255}
	blue  = led.Led{Blue: 255}
	grey  = led.Led{Red: 10, Green: 10, Blue: 10}
)

func mustTable(t *testing.T, defs ...Definition) *Table {
	t.Helper()
	table, err := NewTable(defs, grey)
	require.NoError(t, err)
	return table
}

func TestClassify(t *testing.T) {
	table := mustTable(t,
		Definition{Name: "Z1", MinWatt: 0, MaxWatt: 100, Color: red},
		Definition{Name: "Z2", MinWatt: 101, MaxWatt: 250, Color: green},
		Definition{Name: "Z3", MinWatt: 300, MaxWatt: Unbounded, Color: blue},
	)

	tests := []struct {
		watts uint32
		name  string
		color led.Led
	}{
		{0, "Z1", red},
		{100, "Z1", red},
		{101, "Z2", green},
		{250, "Z2", green},
		{251, UnknownZone, grey},
		{299, UnknownZone, grey},
		{300, "Z3", blue},
		{Unbounded, "Z3", blue},
	}
	for _, tt := range tests {
		name, color := table.Classify(tt.watts)
		assert.Equal(t, tt.name, name, "watts=%d", tt.watts)
		assert.Equal(t, tt.color, color, "watts=%d", tt.watts)
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	wide := Definition{Name: "wide", MinWatt: 0, MaxWatt: 500, Color: red}
	narrow := Definition{Name: "narrow", MinWatt: 100, MaxWatt: 200, Color: green}

	wideFirst := mustTable(t, wide, narrow)
	narrowFirst := mustTable(t, narrow, wide)

	name, color := wideFirst.Classify(150)
	assert.Equal(t, "wide", name)
	assert.Equal(t, red, color)

	name, color = narrowFirst.Classify(150)
	assert.Equal(t, "narrow", name)
	assert.Equal(t, green, color)

	// Outside the overlap the order does not matter.
	name, _ = narrowFirst.Classify(50)
	assert.Equal(t, "wide", name)
}

func TestClassify_SharedBoundary(t *testing.T) {
	// Zones derived from FTP percentages share their boundary watt.
	table := mustTable(t,
		Definition{Name: "Z1", MinWatt: 0, MaxWatt: 150, Color: red},
		Definition{Name: "Z2", MinWatt: 150, MaxWatt: 200, Color: green},
	)
	name, _ := table.Classify(150)
	assert.Equal(t, "Z1", name)
}

func TestNewTable_Errors(t *testing.T) {
	_, err := NewTable(nil, grey)
	assert.ErrorIs(t, err, ErrNoZones)

	_, err = NewTable([]Definition{{Name: "bad", MinWatt: 10, MaxWatt: 5}}, grey)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestNewTable_CopiesInput(t *testing.T) {
	defs := []Definition{{Name: "Z1", MinWatt: 0, MaxWatt: 100, Color: red}}
	table := mustTable(t, defs...)
	defs[0].Name = "changed"

	name, _ := table.Classify(50)
	assert.Equal(t, "Z1", name)

	zones := table.Zones()
	zones[0].Name = "changed again"
	assert.Equal(t, "Z1", table.Zones()[0].Name)
}

func TestOverlaps(t *testing.T) {
	table := mustTable(t,
		Definition{Name: "Z1", MinWatt: 0, MaxWatt: 100},
		Definition{Name: "Z2", MinWatt: 100, MaxWatt: 200},
		Definition{Name: "Z3", MinWatt: 201, MaxWatt: Unbounded},
		Definition{Name: "Z4", MinWatt: 250, MaxWatt: 260},
	)
	overlaps := table.Overlaps()
	require.Len(t, overlaps, 2)
	assert.Equal(t, "Z1", overlaps[0].Earlier.Name)
	assert.Equal(t, "Z2", overlaps[0].Later.Name)
	assert.Equal(t, "Z3", overlaps[1].Earlier.Name)
	assert.Equal(t, "Z4", overlaps[1].Later.Name)

	assert.Empty(t, mustTable(t, Definition{Name: "only", MaxWatt: 10}).Overlaps())
}

func TestDefinition_String(t *testing.T) {
	assert.Equal(t, "Z1: 0W - 100W", Definition{Name: "Z1", MaxWatt: 100}.String())
	assert.Equal(t, "top: 300W - inf", Definition{Name: "top", MinWatt: 300, MaxWatt: Unbounded}.String())
}
