package pipeline

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/askiada/go-insar/pkg/collaborator"
	"github.com/askiada/go-insar/pkg/displacement"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/interferogram"
	"github.com/askiada/go-insar/pkg/raster"
	"github.com/askiada/go-insar/pkg/unwrap"
)

// Artifact names, relative to the work directory.
const (
	ArtifactDEM           = "dem"
	ArtifactLandmask      = "landmask"
	ArtifactReference     = "reference_slc"
	ArtifactSecondary     = "secondary_slc"
	ArtifactInterferogram = "interferogram"
	ArtifactPhase         = "phase"
	ArtifactCoherence     = "coherence"
	ArtifactUnwrapped     = "unwrapped_phase"
	ArtifactLOS           = "los_displacement"
	ArtifactVertical      = "vertical_displacement"
	ArtifactEastWest      = "east_west_displacement"
)

func missing(what string) Outcome {
	return Failed(insarerr.Configf("no %s configured", what))
}

// external classifies a collaborator failure as external IO unless it already carries a class.
func external(err error, msg string) error {
	if insarerr.KindOf(err) != insarerr.KindUnknown {
		return errors.Wrap(err, msg)
	}

	return insarerr.ExternalIO(err, msg)
}

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', 6, 64) }

func shape[T raster.Sample](r *raster.Raster[T]) raster.Metadata {
	return raster.Metadata{"width": itoa(r.Width()), "height": itoa(r.Height())}
}

func (sc *StepContext) aoi() raster.Bounds {
	if sc.Config.AOI != nil {
		return *sc.Config.AOI
	}

	return raster.Bounds{}
}

// save stores r as a work artifact and returns its path.
func save[T raster.Sample](ctx context.Context, sc *StepContext, r *raster.Raster[T], name string, meta raster.Metadata) (string, error) {
	p := sc.Path(name)

	err := raster.Save(ctx, sc.Store, r, p, meta)
	if err != nil {
		return "", external(err, "unable to save "+name)
	}

	return p, nil
}

func saveReal(ctx context.Context, sc *StepContext, r *raster.Raster[float32], name, units string) (string, error) {
	meta := raster.StatsMetadata(r).Merge(shape(r))
	if units != "" {
		meta["units"] = units
	}

	return save(ctx, sc, r, name, meta)
}

func downloadData(ctx context.Context, sc *StepContext) Outcome {
	bursts := sc.Config.CleanBursts()
	sc.Logf("Downloading %d bursts...", len(bursts))

	if len(bursts) == 0 {
		return Failed(insarerr.Configf("no burst IDs provided"))
	}

	if sc.Collaborators.Scenes == nil {
		return missing("scene source")
	}

	sc.Progress(20, "Downloading bursts...")

	scenes, err := sc.Collaborators.Scenes.Scenes(ctx, collaborator.SceneRequest{
		AOI:            sc.Config.AOI,
		Bursts:         bursts,
		Polarization:   sc.Config.Polarization,
		OrbitDirection: sc.Config.OrbitDirection,
		Dir:            sc.Config.DataDir,
	})
	if err != nil {
		return Failed(external(err, "unable to download scenes"))
	}

	if len(scenes) == 0 {
		return Failed(insarerr.ExternalIOf("no scene found for %d bursts", len(bursts)))
	}

	sc.State.Scenes = scenes

	paths := make([]string, 0, len(scenes))
	for _, s := range scenes {
		paths = append(paths, s.Path)
	}

	sc.Logf("Found %d scenes", len(scenes))

	return Completed(paths, raster.Metadata{"scenes": itoa(len(scenes)), "bursts": itoa(len(bursts))})
}

func downloadDEM(ctx context.Context, sc *StepContext) Outcome {
	if sc.Collaborators.DEM == nil {
		return missing("DEM source")
	}

	sc.Logf("Downloading DEM...")
	sc.Progress(30, "Downloading DEM...")

	dem, err := sc.Collaborators.DEM.DEM(ctx, collaborator.GridRequest{Bounds: sc.aoi(), Resolution: sc.Config.Resolution})
	if err != nil {
		return Failed(external(err, "unable to download DEM"))
	}

	p, err := saveReal(ctx, sc, dem, ArtifactDEM, "m")
	if err != nil {
		return Failed(err)
	}

	sc.State.DEM = dem

	return Completed([]string{p}, shape(dem))
}

func downloadLandmask(ctx context.Context, sc *StepContext) Outcome {
	if sc.Collaborators.Landmask == nil {
		return missing("landmask source")
	}

	sc.Logf("Downloading landmask...")
	sc.Progress(50, "Downloading landmask...")

	mask, err := sc.Collaborators.Landmask.Landmask(ctx, collaborator.GridRequest{Bounds: sc.aoi(), Resolution: sc.Config.Resolution})
	if err != nil {
		return Failed(external(err, "unable to download landmask"))
	}

	p, err := saveReal(ctx, sc, mask, ArtifactLandmask, "")
	if err != nil {
		return Failed(err)
	}

	sc.State.Landmask = mask

	return Completed([]string{p}, shape(mask))
}

func initializeStack(ctx context.Context, sc *StepContext) Outcome {
	if len(sc.State.Scenes) == 0 {
		return Failed(insarerr.Configf("no scenes downloaded"))
	}

	if sc.Collaborators.Stacker == nil {
		return missing("stacker")
	}

	sc.Logf("Initializing stack with %d scenes...", len(sc.State.Scenes))
	sc.Progress(30, "Creating stack...")

	stack, err := sc.Collaborators.Stacker.Stack(ctx, sc.State.Scenes)
	if err != nil {
		return Failed(external(err, "unable to create stack"))
	}

	if len(stack.Secondaries) == 0 {
		return Failed(insarerr.Configf("stack needs at least two acquisitions, got %d", len(sc.State.Scenes)))
	}

	sc.State.Stack = stack

	return Completed(nil, raster.Metadata{
		"scenes":    itoa(len(sc.State.Scenes)),
		"pairs":     itoa(len(stack.Pairs())),
		"reference": stack.Reference.ID,
	})
}

func computeAlignment(ctx context.Context, sc *StepContext) Outcome {
	if sc.State.Stack == nil {
		return Failed(insarerr.Configf("stack not initialized"))
	}

	if sc.State.DEM == nil {
		return Failed(insarerr.Configf("DEM not downloaded"))
	}

	if sc.Collaborators.Aligner == nil {
		return missing("aligner")
	}

	sc.Progress(10, "Loading DEM...")
	sc.Progress(30, "Computing alignment...")

	ref, sec, err := sc.Collaborators.Aligner.Align(ctx, sc.State.Stack, sc.State.DEM)
	if err != nil {
		return Failed(external(err, "unable to align stack"))
	}

	refPath, err := save(ctx, sc, ref, ArtifactReference, shape(ref))
	if err != nil {
		return Failed(err)
	}

	secPath, err := save(ctx, sc, sec, ArtifactSecondary, shape(sec))
	if err != nil {
		return Failed(err)
	}

	sc.State.Reference, sc.State.Secondary = ref, sec

	return Completed([]string{refPath, secPath}, shape(ref))
}

func computeGeocoding(ctx context.Context, sc *StepContext) Outcome {
	if sc.State.Stack == nil {
		return Failed(insarerr.Configf("stack not initialized"))
	}

	if sc.State.DEM == nil {
		return Failed(insarerr.Configf("DEM not downloaded"))
	}

	if sc.Collaborators.Geocoder == nil {
		return missing("geocoder")
	}

	sc.Logf("Computing geocoding at %gm resolution...", sc.Config.Resolution)
	sc.Progress(30, "Computing radar transform...")

	geom, err := sc.Collaborators.Geocoder.Geocode(ctx, sc.State.Stack, sc.State.DEM, sc.Config.Resolution)
	if err != nil {
		return Failed(external(err, "unable to geocode"))
	}

	sc.State.Geometry = geom

	return Completed(nil, raster.Metadata{
		"resolution":    ftoa(sc.Config.Resolution),
		"pixel_spacing": ftoa(geom.PixelSpacing),
		"crs":           geom.CRS,
		"bounds":        geom.Bounds.String(),
	})
}

// geocode tags r with the product geometry.
func geocode[T raster.Sample](r *raster.Raster[T], geom *collaborator.Geometry) (*raster.Raster[T], error) {
	return raster.New(r.Width(), r.Height(), r.Data(), raster.WithBounds(geom.Bounds), raster.WithCRS(geom.CRS))
}

func computeInterferogram(ctx context.Context, sc *StepContext) Outcome {
	st := sc.State
	if st.Reference == nil || st.Secondary == nil {
		return Failed(insarerr.Configf("stack not aligned"))
	}

	if st.Geometry == nil {
		return Failed(insarerr.Configf("geocoding not computed"))
	}

	engine, err := interferogram.NewEngine(sc.Config.InterferogramParams())
	if err != nil {
		return Failed(err)
	}

	sc.Logf("Computing interferogram...")
	if st.Stack != nil {
		for _, pair := range st.Stack.Pairs() {
			sc.Logf("Processing pair %s / %s", pair[0].ID, pair[1].ID)
		}
	}

	sc.Progress(10, "Computing multilooking...")

	looked, err := engine.Multilook(st.Reference, st.Secondary)
	if err != nil {
		return Failed(err)
	}

	sc.Progress(50, "Computing correlation...")

	coh, err := engine.Coherence(looked)
	if err != nil {
		return Failed(err)
	}

	sc.Progress(70, "Applying Goldstein filter...")

	product, err := engine.Filter(looked, coh)
	if err != nil {
		return Failed(err)
	}

	sc.Progress(85, "Computing final interferogram...")

	ifg, err := geocode(product.Interferogram, st.Geometry)
	if err != nil {
		return Failed(err)
	}

	phase, err := geocode(product.Phase, st.Geometry)
	if err != nil {
		return Failed(err)
	}

	coh, err = geocode(product.Coherence, st.Geometry)
	if err != nil {
		return Failed(err)
	}

	ifgPath, err := save(ctx, sc, ifg, ArtifactInterferogram, shape(ifg))
	if err != nil {
		return Failed(err)
	}

	phasePath, err := saveReal(ctx, sc, phase, ArtifactPhase, "rad")
	if err != nil {
		return Failed(err)
	}

	cohPath, err := saveReal(ctx, sc, coh, ArtifactCoherence, "")
	if err != nil {
		return Failed(err)
	}

	st.Interferogram = &interferogram.Product{Interferogram: ifg, Phase: phase, Coherence: coh}

	meta := shape(phase)
	meta["mean_coherence"] = ftoa(raster.Summarize(coh).Mean)

	return Completed([]string{ifgPath, phasePath, cohPath}, meta)
}

func phaseUnwrapping(ctx context.Context, sc *StepContext) Outcome {
	st := sc.State
	if st.Interferogram == nil {
		return Failed(insarerr.Configf("interferogram not computed"))
	}

	sc.Logf("Running phase unwrapping...")
	sc.Progress(20, "Preparing landmask...")

	phase := st.Interferogram.Phase
	if st.Landmask != nil {
		mask, err := unwrap.Resample(st.Landmask, phase.Width(), phase.Height())
		if err != nil {
			return Failed(errors.Wrap(err, "unable to resample landmask"))
		}

		phase, err = unwrap.MaskWater(phase, mask)
		if err != nil {
			return Failed(err)
		}
	} else {
		sc.Logf("No landmask available, water is not masked")
	}

	sc.Progress(40, "Configuring unwrapper...")

	inner, err := unwrap.NewPathIntegrator(sc.Config.CoherenceThreshold)
	if err != nil {
		return Failed(err)
	}

	unwrapper, err := unwrap.NewTiled(inner, sc.Config.UnwrapTiles, sc.Config.UnwrapOverlap)
	if err != nil {
		return Failed(err)
	}

	sc.Progress(60, "Unwrapping phase...")

	unwrapped, err := unwrapper.Unwrap(phase, st.Interferogram.Coherence)
	if err != nil {
		return Failed(errors.Wrap(err, "unable to unwrap phase"))
	}

	stats := raster.Summarize(unwrapped)
	if undefined := stats.UndefinedFraction(); undefined > sc.Config.MaxUndefinedFraction {
		return Failed(insarerr.Computef("%.1f%% of unwrapped pixels are undefined, limit is %.1f%%",
			100*undefined, 100*sc.Config.MaxUndefinedFraction))
	}

	p, err := saveReal(ctx, sc, unwrapped, ArtifactUnwrapped, "rad")
	if err != nil {
		return Failed(err)
	}

	st.Unwrapped = unwrapped

	return Completed([]string{p}, raster.Metadata{
		"unwrapped_min":      ftoa(stats.Min),
		"unwrapped_max":      ftoa(stats.Max),
		"undefined_fraction": ftoa(stats.UndefinedFraction()),
	})
}

func computeDisplacement(ctx context.Context, sc *StepContext) Outcome {
	st := sc.State
	if st.Unwrapped == nil {
		return Failed(insarerr.Configf("phase unwrapping not completed"))
	}

	spacing := sc.Config.Resolution
	if st.Geometry != nil && st.Geometry.PixelSpacing > 0 {
		spacing = st.Geometry.PixelSpacing
	}

	conv, err := displacement.NewConverter(displacement.Params{
		Projector:         sc.Config.Projection(),
		Wavelength:        sc.Config.RadarWavelength,
		DetrendWavelength: sc.Config.DetrendWavelength,
		PixelSpacing:      spacing,
		Components:        sc.Config.Components,
	})
	if err != nil {
		return Failed(err)
	}

	sc.Logf("Computing displacements...")
	sc.Progress(20, "Detrending...")

	detrended, err := conv.Detrend(st.Unwrapped)
	if err != nil {
		return Failed(err)
	}

	sc.Progress(40, "Computing LOS displacement...")

	field := &displacement.Field{LOS: conv.LOS(detrended)}

	if sc.Config.Components.Vertical {
		sc.Progress(60, "Computing vertical displacement...")
	}

	if sc.Config.Components.EastWest {
		sc.Progress(80, "Computing east-west displacement...")
	}

	conv.Decompose(field)

	layers := []struct {
		r    *raster.Raster[float32]
		name string
	}{
		{field.LOS, ArtifactLOS},
		{field.Vertical, ArtifactVertical},
		{field.EastWest, ArtifactEastWest},
	}

	var paths []string

	for _, l := range layers {
		if l.r == nil {
			continue
		}

		p, err := saveReal(ctx, sc, l.r, l.name, "mm")
		if err != nil {
			return Failed(err)
		}

		paths = append(paths, p)
	}

	st.Displacement = field

	stats := raster.Summarize(field.LOS)

	return Completed(paths, raster.Metadata{
		"los_min":  ftoa(stats.Min),
		"los_max":  ftoa(stats.Max),
		"los_mean": ftoa(stats.Mean),
		"units":    "mm",
	})
}

func visualizationLayers(st *State) []collaborator.Layer {
	var layers []collaborator.Layer

	add := func(r *raster.Raster[float32], name, title, units string, symmetric bool) {
		if r != nil {
			layers = append(layers, collaborator.Layer{Data: r, Name: name, Title: title, Units: units, Symmetric: symmetric})
		}
	}

	add(st.DEM, ArtifactDEM, "Digital Elevation Model", "m", false)
	add(st.Landmask, ArtifactLandmask, "Landmask", "", false)

	if st.Interferogram != nil {
		add(st.Interferogram.Phase, ArtifactPhase, "Wrapped Phase", "rad", true)
		add(st.Interferogram.Coherence, ArtifactCoherence, "Coherence", "", false)
	}

	if st.Displacement != nil {
		add(st.Displacement.LOS, ArtifactLOS, "LOS Displacement", "mm", true)
		add(st.Displacement.Vertical, ArtifactVertical, "Vertical Displacement", "mm", true)
		add(st.Displacement.EastWest, ArtifactEastWest, "East-West Displacement", "mm", true)
	}

	return layers
}

func generateVisualizations(ctx context.Context, sc *StepContext) Outcome {
	if sc.Collaborators.Renderer == nil {
		return missing("renderer")
	}

	layers := visualizationLayers(sc.State)
	if len(layers) == 0 {
		return Failed(insarerr.Configf("nothing to visualize"))
	}

	sc.Logf("Generating visualizations...")

	var paths []string

	for i, layer := range layers {
		if ctx.Err() != nil {
			return Cancelled()
		}

		sc.Progress(float64(10+80*i/len(layers)), "Generating "+layer.Name+" plot...")

		p, err := sc.Collaborators.Renderer.Render(ctx, layer, sc.Config.Epicenters)
		if err != nil {
			sc.Logger.Warn().Err(err).Str("layer", layer.Name).Msg("plot skipped")
			sc.Logf("Warning: Failed to generate %s plot: %v", layer.Name, err)

			continue
		}

		paths = append(paths, p)
	}

	if len(paths) == 0 {
		return Failed(insarerr.ExternalIOf("all %d plots failed", len(layers)))
	}

	return Completed(paths, raster.Metadata{"plots": itoa(len(paths)), "skipped": itoa(len(layers) - len(paths))})
}
