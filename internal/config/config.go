// Package config holds the processing configuration of a run.
package config

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/askiada/go-insar/pkg/displacement"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/interferogram"
	"github.com/askiada/go-insar/pkg/raster"
	"github.com/askiada/go-insar/pkg/unwrap"
)

// maxFileSize caps configuration files.
const maxFileSize = 1 << 20

// ProcessingConfig is the immutable configuration of one pipeline run.
type ProcessingConfig struct {
	AOI        *raster.Bounds  `json:"aoi,omitempty" yaml:"aoi,omitempty"`
	Heading    *float64        `json:"heading,omitempty" yaml:"heading,omitempty"`
	Bursts     []string        `json:"bursts" yaml:"bursts"`
	Epicenters []raster.LatLon `json:"epicenters" yaml:"epicenters"`

	Polarization   string `json:"polarization" yaml:"polarization"`
	OrbitDirection string `json:"orbit_direction" yaml:"orbit_direction"`
	OutputDir      string `json:"output_dir" yaml:"output_dir"`
	DataDir        string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
	WorkDir        string `json:"work_dir,omitempty" yaml:"work_dir,omitempty"`

	Looks         interferogram.Looks     `json:"looks" yaml:"looks"`
	UnwrapTiles   unwrap.Grid             `json:"unwrap_tiles" yaml:"unwrap_tiles"`
	UnwrapOverlap unwrap.Grid             `json:"unwrap_overlap" yaml:"unwrap_overlap"`
	Components    displacement.Components `json:"components" yaml:"components"`

	Resolution           float64 `json:"resolution" yaml:"resolution"`
	CoherenceThreshold   float64 `json:"coherence_threshold" yaml:"coherence_threshold"`
	CoherenceWindow      int     `json:"coherence_window" yaml:"coherence_window"`
	GoldsteinPatchSize   int     `json:"goldstein_patch_size" yaml:"goldstein_patch_size"`
	GoldsteinAlpha       float64 `json:"goldstein_alpha" yaml:"goldstein_alpha"`
	DetrendWavelength    float64 `json:"detrend_wavelength" yaml:"detrend_wavelength"`
	RadarWavelength      float64 `json:"radar_wavelength" yaml:"radar_wavelength"`
	IncidenceAngle       float64 `json:"incidence_angle" yaml:"incidence_angle"`
	MaxUndefinedFraction float64 `json:"max_undefined_fraction" yaml:"max_undefined_fraction"`
}

// Default returns the configuration used when nothing is overridden.
func Default() ProcessingConfig {
	return ProcessingConfig{
		Polarization:         "VV",
		OrbitDirection:       "D",
		Resolution:           180,
		CoherenceThreshold:   unwrap.DefaultThreshold,
		CoherenceWindow:      interferogram.DefaultWindow,
		Looks:                interferogram.Looks{Rows: 1, Cols: 4},
		UnwrapTiles:          unwrap.Grid{Rows: 1, Cols: 1},
		UnwrapOverlap:        unwrap.Grid{Rows: 200, Cols: 200},
		GoldsteinPatchSize:   32,
		GoldsteinAlpha:       0.5,
		DetrendWavelength:    300000,
		RadarWavelength:      displacement.SentinelWavelength,
		IncidenceAngle:       39,
		Components:           displacement.Components{Vertical: true, EastWest: true},
		MaxUndefinedFraction: 1,
		OutputDir:            "/tmp/insar_results",
	}
}

// Load reads a YAML (or JSON) file over Default and validates the result.
func Load(path string) (ProcessingConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return ProcessingConfig{}, insarerr.ExternalIO(err, "unable to open config "+path)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads a YAML (or JSON) document over Default and validates the result. Unknown fields
// are rejected.
func Decode(r io.Reader) (ProcessingConfig, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxFileSize+1))
	if err != nil {
		return ProcessingConfig{}, insarerr.ExternalIO(err, "unable to read config")
	}

	if len(raw) > maxFileSize {
		return ProcessingConfig{}, insarerr.Configf("config exceeds %d bytes", maxFileSize)
	}

	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	err = dec.Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return ProcessingConfig{}, errors.Wrap(insarerr.ErrConfig, err.Error())
	}

	cfg = cfg.WithDerivedDirs()

	if err := cfg.Validate(); err != nil {
		return ProcessingConfig{}, err
	}

	return cfg, nil
}

// Clone returns a deep copy of c sharing no pointer or slice with it.
func (c ProcessingConfig) Clone() ProcessingConfig {
	if c.AOI != nil {
		aoi := *c.AOI
		c.AOI = &aoi
	}

	if c.Heading != nil {
		heading := *c.Heading
		c.Heading = &heading
	}

	c.Bursts = slices.Clone(c.Bursts)
	c.Epicenters = slices.Clone(c.Epicenters)

	return c
}

// WithDerivedDirs returns a copy with DataDir and WorkDir defaulted under OutputDir.
func (c ProcessingConfig) WithDerivedDirs() ProcessingConfig {
	if c.DataDir == "" {
		c.DataDir = filepath.Join(c.OutputDir, "data")
	}

	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(c.OutputDir, "work")
	}

	return c
}

// Validate reports every invalid field in a single ErrConfig error.
func (c ProcessingConfig) Validate() error {
	var problems []string

	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	switch strings.ToUpper(c.Polarization) {
	case "VV", "VH", "HH", "HV":
	default:
		problems = append(problems, fmt.Sprintf("unknown polarization %q", c.Polarization))
	}

	switch strings.ToUpper(c.OrbitDirection) {
	case "A", "D":
	default:
		problems = append(problems, fmt.Sprintf("orbit direction must be A or D, got %q", c.OrbitDirection))
	}

	check(c.Resolution > 0, "resolution must be positive, got %g", c.Resolution)
	check(inUnit(c.CoherenceThreshold), "coherence threshold must be in [0, 1], got %g", c.CoherenceThreshold)
	check(c.CoherenceWindow >= 1 && c.CoherenceWindow%2 == 1, "coherence window must be a positive odd number, got %d", c.CoherenceWindow)
	check(c.Looks.Validate() == nil, "looks must be positive, got %dx%d", c.Looks.Rows, c.Looks.Cols)
	check(c.UnwrapTiles.Rows >= 1 && c.UnwrapTiles.Cols >= 1, "unwrap tiles must be positive, got %dx%d", c.UnwrapTiles.Rows, c.UnwrapTiles.Cols)
	check(c.UnwrapOverlap.Rows >= 0 && c.UnwrapOverlap.Cols >= 0, "unwrap overlap must not be negative, got %dx%d", c.UnwrapOverlap.Rows, c.UnwrapOverlap.Cols)
	check(c.Filter().Validate() == nil, "invalid goldstein filter: patch %d, alpha %g", c.GoldsteinPatchSize, c.GoldsteinAlpha)
	check(c.DetrendWavelength >= 0, "detrend wavelength must not be negative, got %g", c.DetrendWavelength)
	check(c.RadarWavelength > 0, "radar wavelength must be positive, got %g", c.RadarWavelength)
	check(c.IncidenceAngle > 0 && c.IncidenceAngle < 90, "incidence angle must be in (0, 90), got %g", c.IncidenceAngle)
	check(inUnit(c.MaxUndefinedFraction), "max undefined fraction must be in [0, 1], got %g", c.MaxUndefinedFraction)
	check(c.OutputDir != "", "output dir must be set")

	if c.AOI != nil {
		check(c.AOI.West < c.AOI.East && c.AOI.South < c.AOI.North, "aoi is empty: %s", c.AOI.String())
	}

	if len(problems) > 0 {
		return insarerr.Configf("invalid config: %s", strings.Join(problems, "; "))
	}

	return nil
}

// Filter returns the Goldstein filter parameters.
func (c ProcessingConfig) Filter() interferogram.FilterParams {
	return interferogram.FilterParams{PatchSize: c.GoldsteinPatchSize, Alpha: c.GoldsteinAlpha}
}

// InterferogramParams returns the interferogram engine parameters.
func (c ProcessingConfig) InterferogramParams() interferogram.Params {
	return interferogram.Params{
		Window: c.CoherenceWindow,
		Looks:  c.Looks,
		Filter: c.Filter(),
	}
}

// HeadingDegrees returns the configured heading, or the nominal one for the orbit direction.
func (c ProcessingConfig) HeadingDegrees() float64 {
	if c.Heading != nil {
		return *c.Heading
	}

	return displacement.HeadingFor(c.OrbitDirection)
}

// Projection returns the LOS decomposition policy.
func (c ProcessingConfig) Projection() displacement.Projector {
	return displacement.IncidenceProjection{Incidence: c.IncidenceAngle, Heading: c.HeadingDegrees()}
}

// CleanBursts returns the trimmed, non-empty burst identifiers.
func (c ProcessingConfig) CleanBursts() []string {
	out := make([]string, 0, len(c.Bursts))
	for _, b := range c.Bursts {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}

	return out
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
