package displacement_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-insar/pkg/displacement"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/raster"
)

func TestLOSFormula(t *testing.T) {
	t.Parallel()

	nan := float32(math.NaN())
	phase, err := raster.New(4, 1, []float32{0, 1, -2.5, nan})
	require.NoError(t, err)

	los := displacement.ToLOS(phase, displacement.SentinelWavelength)

	for i, p := range phase.Data()[:3] {
		want := displacement.SentinelWavelength / (4 * math.Pi) * float64(p) * 1000
		assert.InDelta(t, want, los.Data()[i], 1e-5)
	}
	assert.True(t, math.IsNaN(float64(los.At(3, 0))))

	// One full cycle is half a wavelength of range change.
	assert.InDelta(t, 27.7328815, displacement.PhaseToMillimetres(2*math.Pi, displacement.SentinelWavelength), 1e-6)
}

func TestDetrendConstantIsZero(t *testing.T) {
	t.Parallel()

	phase, err := raster.Generate(30, 20, func(x, y int) float32 { return 4.2 })
	require.NoError(t, err)

	out, err := displacement.Detrend(phase, 3000, 180)
	require.NoError(t, err)

	for _, v := range out.Data() {
		assert.InDelta(t, 0, v, 1e-5)
	}
}

func TestDetrendKeepsShortFeatures(t *testing.T) {
	t.Parallel()

	nan := float32(math.NaN())
	phase, err := raster.Generate(41, 41, func(x, y int) float32 {
		if x == 0 && y == 0 {
			return nan
		}
		v := 0.01 * float64(x)
		if x == 20 && y == 20 {
			v += 5
		}
		return float32(v)
	})
	require.NoError(t, err)

	out, err := displacement.Detrend(phase, 50*180, 180)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(float64(out.At(0, 0))))
	assert.Greater(t, out.At(20, 20), float32(4))
	assert.InDelta(t, 0, out.At(5, 30), 0.06)
}

func TestDetrendDisabledAndInvalid(t *testing.T) {
	t.Parallel()

	phase, err := raster.New(1, 1, []float32{1})
	require.NoError(t, err)

	same, err := displacement.Detrend(phase, 0, 0)
	require.NoError(t, err)
	assert.Same(t, phase, same)

	_, err = displacement.Detrend(phase, 1000, 0)
	assert.ErrorIs(t, err, insarerr.ErrConfig)

	_, err = displacement.Detrend(phase, -1, 10)
	assert.ErrorIs(t, err, insarerr.ErrConfig)
}

func TestIncidenceProjection(t *testing.T) {
	t.Parallel()

	p := displacement.IncidenceProjection{Incidence: 60, Heading: 180}
	v, e := p.Project(10)
	assert.InDelta(t, 20, v, 1e-9)
	assert.InDelta(t, 10/math.Sin(math.Pi/3), e, 1e-9)

	flat := displacement.IncidenceProjection{Incidence: 39, Heading: 90}
	_, e = flat.Project(10)
	assert.True(t, math.IsNaN(e))

	assert.Equal(t, displacement.AscendingHeading, displacement.HeadingFor("a"))
	assert.Equal(t, displacement.DescendingHeading, displacement.HeadingFor("D"))
}

func TestConverter(t *testing.T) {
	t.Parallel()

	nan := float32(math.NaN())
	phase, err := raster.New(3, 1, []float32{1, nan, -1})
	require.NoError(t, err)

	conv, err := displacement.NewConverter(displacement.Params{
		Wavelength: displacement.SentinelWavelength,
		Projector:  displacement.IncidenceProjection{Incidence: 39, Heading: displacement.DescendingHeading},
		Components: displacement.Components{Vertical: true},
	})
	require.NoError(t, err)

	field, err := conv.Convert(phase)
	require.NoError(t, err)
	require.NotNil(t, field.Vertical)
	assert.Nil(t, field.EastWest)

	los := displacement.PhaseToMillimetres(1, displacement.SentinelWavelength)
	assert.InDelta(t, los, field.LOS.At(0, 0), 1e-5)
	assert.InDelta(t, los/math.Cos(39*math.Pi/180), field.Vertical.At(0, 0), 1e-5)
	assert.True(t, math.IsNaN(float64(field.LOS.At(1, 0))))
	assert.True(t, math.IsNaN(float64(field.Vertical.At(1, 0))))
}

func TestNewConverterValidates(t *testing.T) {
	t.Parallel()

	_, err := displacement.NewConverter(displacement.Params{})
	assert.ErrorIs(t, err, insarerr.ErrConfig)

	_, err = displacement.NewConverter(displacement.Params{
		Wavelength: 1,
		Components: displacement.Components{EastWest: true},
	})
	assert.ErrorIs(t, err, insarerr.ErrConfig)

	_, err = displacement.NewConverter(displacement.Params{Wavelength: 1, DetrendWavelength: 1000})
	assert.ErrorIs(t, err, insarerr.ErrConfig)
}
