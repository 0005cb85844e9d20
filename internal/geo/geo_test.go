package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

func TestResolve(t *testing.T) {
	g := New(config.GeoConfig{})
	tests := []struct {
		in   string
		want model.ZoneKey
		ok   bool
	}{
		{"Kharkiv", model.ZoneKey{Country: "UA", Region: "Kharkiv"}, true},
		{"the Gaza Strip", model.ZoneKey{Country: "PS", Region: "Gaza"}, true},
		{"KHARKOV", model.ZoneKey{Country: "UA", Region: "Kharkiv"}, true},
		{"outskirts of El Fasher", model.ZoneKey{Country: "SD", Region: "Darfur"}, true},
		{"Atlantis", model.ZoneKey{}, false},
		{"", model.ZoneKey{}, false},
	}
	for _, tt := range tests {
		p, ok := g.Resolve(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, p.Zone, tt.in)
	}
}

func TestConfiguredPlacesOverrideBuiltin(t *testing.T) {
	g := New(config.GeoConfig{Places: []config.Place{
		{Name: "Y", Country: "yy", Region: "North"},
		{Name: "Kharkiv", Country: "UA", Region: "Kharkiv Oblast"},
	}})
	p, ok := g.Resolve("Y's")
	require.True(t, ok)
	assert.Equal(t, model.ZoneKey{Country: "YY", Region: "North"}, p.Zone)

	p, ok = g.Resolve("Kharkiv")
	require.True(t, ok)
	assert.Equal(t, "Kharkiv Oblast", p.Zone.Region)

	only := New(config.GeoConfig{DisableBuiltin: true})
	_, ok = only.Resolve("Kharkiv")
	assert.False(t, ok)
}

func TestScanAndDominant(t *testing.T) {
	g := New(config.GeoConfig{})
	text := "Shelling hit Kharkiv overnight. Officials in Kyiv said Kharkiv's grid was down; Kharkivians fled."
	ms := g.Scan(text)
	require.Len(t, ms, 3)
	assert.Equal(t, "Kharkiv", ms[0].Place.Name)
	assert.Equal(t, "Kyiv", ms[1].Place.Name)

	p, ok := g.Dominant(text)
	require.True(t, ok)
	assert.Equal(t, "Kharkiv", p.Name)

	// the longer name wins over the contained one
	ms = g.Scan("Fighting in South Lebanon continued.")
	require.Len(t, ms, 1)
	assert.Equal(t, "South Lebanon", ms[0].Place.Name)
}
