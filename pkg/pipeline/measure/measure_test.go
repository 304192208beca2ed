package measure_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-insar/pkg/pipeline/measure"
	"github.com/askiada/go-insar/pkg/pipeline/model"
)

func TestMetricAverages(t *testing.T) {
	t.Parallel()

	m := measure.NewDefaultMeasure()
	mt := m.AddMetric("compute_interferogram")
	assert.Same(t, mt, m.AddMetric("compute_interferogram"))

	mt.AddDuration(2 * time.Second)
	mt.AddDuration(4 * time.Second)
	mt.AddTransportDuration("compute_geocoding", 10*time.Millisecond)
	mt.AddTransportDuration("compute_geocoding", 20*time.Millisecond)

	assert.Equal(t, 3*time.Second, mt.AVGDuration())
	assert.Equal(t, 15*time.Millisecond, mt.AVGTransportDuration()["compute_geocoding"].Elapsed)
	// Averaging twice must not divide the stored totals again.
	assert.Equal(t, 15*time.Millisecond, mt.AVGTransportDuration()["compute_geocoding"].Elapsed)
	assert.Equal(t, 30*time.Millisecond, mt.AllTransports()["compute_geocoding"].Elapsed)

	assert.Nil(t, m.GetMetric("missing"))
	assert.Equal(t, []string{"compute_interferogram"}, m.Names())
}

func TestPipelineMeasure(t *testing.T) {
	t.Parallel()

	m := measure.NewDefaultMeasure()
	opt := measure.PipelineMeasure(m)

	dem := &model.StepInfo{Name: "download_dem"}
	require.NoError(t, opt.New([]*model.StepInfo{dem}))

	dem.StartedAt = time.Now()
	require.NoError(t, opt.BeforeStep(dem))
	dem.FinishedAt = dem.StartedAt.Add(50 * time.Millisecond)
	require.NoError(t, opt.AfterStep(dem))
	require.NoError(t, opt.Finish())

	assert.Equal(t, []string{"start", "download_dem", "end"}, m.Names())
	assert.Equal(t, 50*time.Millisecond, m.GetMetric("download_dem").AVGDuration())
	assert.Contains(t, m.GetMetric("download_dem").AllTransports(), "start")
	assert.Contains(t, m.GetMetric("end").AllTransports(), "download_dem")
	assert.Positive(t, m.GetMetric("end").GetTotalDuration())
}
