package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-insar/internal/config"
	"github.com/askiada/go-insar/pkg/displacement"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/raster"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := config.Default().WithDerivedDirs()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/tmp/insar_results/data", cfg.DataDir)
	assert.Equal(t, "/tmp/insar_results/work", cfg.WorkDir)
	assert.Equal(t, displacement.DescendingHeading, cfg.HeadingDegrees())
}

func TestDecodeOverridesDefaults(t *testing.T) {
	t.Parallel()

	doc := `
bursts: [" 021_043788_IW1 ", "", "021_043789_IW1"]
orbit_direction: A
resolution: 60
looks: {rows: 2, cols: 8}
epicenters:
  - {lat: 37.23, lon: 37.01}
aoi: {west: 36, east: 38, south: 36.5, north: 38}
heading: -10
components: {vertical: true, east_west: false}
`
	cfg, err := config.Decode(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, []string{"021_043788_IW1", "021_043789_IW1"}, cfg.CleanBursts())
	assert.Equal(t, 60.0, cfg.Resolution)
	assert.Equal(t, 2, cfg.Looks.Rows)
	assert.Equal(t, []raster.LatLon{{Lat: 37.23, Lon: 37.01}}, cfg.Epicenters)
	require.NotNil(t, cfg.AOI)
	assert.Equal(t, 36.5, cfg.AOI.South)
	assert.Equal(t, -10.0, cfg.HeadingDegrees())
	assert.False(t, cfg.Components.EastWest)
	assert.Equal(t, "VV", cfg.Polarization)
	assert.Equal(t, 0.5, cfg.GoldsteinAlpha)
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	cfg, err := config.Decode(strings.NewReader(`{"resolution": 90, "output_dir": "/data/out"}`))
	require.NoError(t, err)
	assert.Equal(t, 90.0, cfg.Resolution)
	assert.Equal(t, filepath.Join("/data/out", "work"), cfg.WorkDir)
}

func TestDecodeEmptyGivesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, config.Default().WithDerivedDirs(), cfg)
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()

	tcs := map[string]string{
		"unknown field":    "colour: red",
		"bad window":       "coherence_window: 4",
		"bad orbit":        "orbit_direction: X",
		"bad threshold":    "coherence_threshold: 1.5",
		"bad patch":        "goldstein_patch_size: 5",
		"bad incidence":    "incidence_angle: 95",
		"empty aoi":        "aoi: {west: 2, east: 1, south: 0, north: 1}",
		"negative detrend": "detrend_wavelength: -3",
		"too large":        "bursts: [" + strings.Repeat(`"x",`, 1<<18) + `"x"]`,
	}

	for name, doc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Decode(strings.NewReader(doc))
			assert.ErrorIs(t, err, insarerr.ErrConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("goldstein_alpha: 0.8\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.GoldsteinAlpha)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, insarerr.ErrExternalIO)
}

func TestClone(t *testing.T) {
	t.Parallel()

	heading := 190.0
	cfg := config.Default()
	cfg.AOI = &raster.Bounds{West: 36, East: 38, South: 36.5, North: 38}
	cfg.Heading = &heading
	cfg.Bursts = []string{"021_043788_IW1", "021_043789_IW1"}
	cfg.Epicenters = []raster.LatLon{{Lat: 37.2, Lon: 37}}

	cp := cfg.Clone()
	assert.Equal(t, cfg, cp)

	cfg.AOI.West = 0
	*cfg.Heading = 10
	cfg.Bursts[1] = "x"
	cfg.Epicenters[0].Lon = 0

	assert.Equal(t, 36.0, cp.AOI.West)
	assert.Equal(t, 190.0, cp.HeadingDegrees())
	assert.Equal(t, "021_043789_IW1", cp.Bursts[1])
	assert.Equal(t, 37.0, cp.Epicenters[0].Lon)

	empty := config.ProcessingConfig{}.Clone()
	assert.Nil(t, empty.AOI)
	assert.Nil(t, empty.Bursts)
}
