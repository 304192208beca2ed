package pipeline

import (
	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
)

// Step names a processing step.
type Step string

const (
	DownloadData           Step = "download_data"
	DownloadDEM            Step = "download_dem"
	DownloadLandmask       Step = "download_landmask"
	InitializeStack        Step = "initialize_stack"
	ComputeAlignment       Step = "compute_alignment"
	ComputeGeocoding       Step = "compute_geocoding"
	ComputeInterferogram   Step = "compute_interferogram"
	PhaseUnwrapping        Step = "phase_unwrapping"
	ComputeDisplacement    Step = "compute_displacement"
	GenerateVisualizations Step = "generate_visualizations"
)

var defaultOrder = []Step{
	DownloadData,
	DownloadDEM,
	DownloadLandmask,
	InitializeStack,
	ComputeAlignment,
	ComputeGeocoding,
	ComputeInterferogram,
	PhaseUnwrapping,
	ComputeDisplacement,
	GenerateVisualizations,
}

var requirements = map[Step][]Step{
	InitializeStack:        {DownloadData},
	ComputeAlignment:       {InitializeStack, DownloadDEM},
	ComputeGeocoding:       {InitializeStack, DownloadDEM},
	ComputeInterferogram:   {ComputeAlignment, ComputeGeocoding},
	PhaseUnwrapping:        {ComputeInterferogram, DownloadLandmask},
	ComputeDisplacement:    {PhaseUnwrapping},
	GenerateVisualizations: {ComputeDisplacement},
}

// AllSteps returns every step in default execution order.
func AllSteps() []Step {
	out := make([]Step, len(defaultOrder))
	copy(out, defaultOrder)

	return out
}

func (s Step) String() string { return string(s) }

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	return s.index() >= 0
}

func (s Step) index() int {
	for i, step := range defaultOrder {
		if step == s {
			return i
		}
	}

	return -1
}

// Critical reports whether a failure of s aborts the run.
func (s Step) Critical() bool {
	return s != GenerateVisualizations
}

// Requires returns the steps whose state s consumes.
func (s Step) Requires() []Step {
	req := requirements[s]
	out := make([]Step, len(req))
	copy(out, req)

	return out
}

// Plan validates steps and returns them without duplicates in execution order. No steps means
// every step.
func Plan(steps []Step) ([]Step, error) {
	if len(steps) == 0 {
		return AllSteps(), nil
	}

	g := graph.New(graph.StringHash, graph.Directed(), graph.Acyclic())

	for _, step := range steps {
		if !step.Valid() {
			return nil, errors.Wrapf(ErrUnknownStep, "%q", step)
		}

		err := g.AddVertex(string(step))
		if err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return nil, errors.Wrapf(err, "unable to add step %s", step)
		}
	}

	for _, step := range steps {
		for _, req := range requirements[step] {
			if _, err := g.Vertex(string(req)); err != nil {
				continue
			}

			err := g.AddEdge(string(req), string(step))
			if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, errors.Wrapf(err, "unable to link %s to %s", req, step)
			}
		}
	}

	order, err := graph.StableTopologicalSort(g, func(a, b string) bool {
		return Step(a).index() < Step(b).index()
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to order steps")
	}

	out := make([]Step, 0, len(order))
	for _, name := range order {
		out = append(out, Step(name))
	}

	return out, nil
}
