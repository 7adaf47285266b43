package grbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/zprobe/coord"
)

func TestParseProbe(t *testing.T) {
	res, err := ParseProbe("[PRB:3.214,0.000,-1.500:1]\n")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, coord.Point{X: 3.214, Z: -1.5}, res.Point)

	res, err = ParseProbe("[PRB:0.000,0.000,-5.000:0]")
	require.NoError(t, err)
	assert.False(t, res.Valid)

	_, err = ParseProbe("[GC:G0 G54]")
	assert.Error(t, err)
	_, err = ParseProbe("[PRB:1,2:1]")
	assert.Error(t, err)
	_, err = ParseProbe("[PRB:1,2,3]")
	assert.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	stat, err := ParseStatus("<Idle|MPos:10.000,5.000,-2.000|WCO:1.000,0.000,0.000>")
	require.NoError(t, err)
	assert.Equal(t, &Status{
		State: "Idle",
		MPos:  coord.Point{X: 10, Y: 5, Z: -2},
		WCO:   coord.Point{X: 1},
	}, stat)

	_, err = ParseStatus("ok")
	assert.Error(t, err)
	_, err = ParseStatus("<Run|MPos:a,b,c>")
	assert.Error(t, err)
}

func TestStatus_String(t *testing.T) {
	stat := Status{State: "Alarm", MPos: coord.Point{X: 1.5, Y: -2, Z: 0.25}}
	assert.Equal(t, "<Alarm|MPos:1.500,-2.000,0.250|WCO:0.000,0.000,0.000>", stat.String())

	parsed, err := ParseStatus(stat.String())
	require.NoError(t, err)
	assert.Equal(t, stat, *parsed)
}
