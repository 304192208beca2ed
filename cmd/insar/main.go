// Command insar runs the InSAR processing pipeline on synthetic acquisitions and reports its
// progress, products and run history.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/askiada/go-insar/internal/config"
	"github.com/askiada/go-insar/internal/db"
	"github.com/askiada/go-insar/internal/logger"
	"github.com/askiada/go-insar/internal/registry"
	"github.com/askiada/go-insar/internal/render"
	"github.com/askiada/go-insar/internal/store"
	"github.com/askiada/go-insar/internal/synthetic"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/pipeline"
	"github.com/askiada/go-insar/pkg/pipeline/drawer"
	"github.com/askiada/go-insar/pkg/pipeline/measure"
	"github.com/askiada/go-insar/pkg/raster"
)

type options struct {
	configPath string
	steps      string
	bursts     string
	outputDir  string
	dbPath     string
	dotPath    string
	reportPath string
	logLevel   string
	history    int
	jsonLogs   bool
	memory     bool
}

func parseFlags() options {
	var o options

	flag.StringVar(&o.configPath, "config", "", "YAML or JSON processing configuration")
	flag.StringVar(&o.steps, "steps", "", "comma separated steps to run, all when empty")
	flag.StringVar(&o.bursts, "bursts", "", "comma separated burst identifiers, overrides the configuration")
	flag.StringVar(&o.outputDir, "output", "", "output directory, overrides the configuration")
	flag.StringVar(&o.dbPath, "db", "", "SQLite database for rasters and run history, defaults to <output>/insar.db")
	flag.StringVar(&o.dotPath, "dot", "", "write the step graph as Graphviz DOT, defaults to <output>/pipeline.dot")
	flag.StringVar(&o.reportPath, "report", "", "write the HTML run report, defaults to <output>/report.html")
	flag.StringVar(&o.logLevel, "log-level", "info", "log level")
	flag.IntVar(&o.history, "history", 0, "print the last N recorded runs and exit")
	flag.BoolVar(&o.jsonLogs, "json", false, "log JSON to stderr instead of console output")
	flag.BoolVar(&o.memory, "memory", false, "keep rasters in memory and record no history")
	flag.Parse()

	return o
}

func main() {
	o := parseFlags()

	level := logger.ParseLevel(o.logLevel)

	log := logger.NewConsole(level)
	if o.jsonLogs {
		log = logger.New(os.Stderr, level)
	}

	err := run(o, log)

	switch {
	case err == nil:
	case errors.Is(err, insarerr.ErrCancelled):
		log.Warn().Err(err).Msg("processing cancelled")
		os.Exit(130)
	default:
		log.Error().Err(err).Str("kind", string(insarerr.KindOf(err))).Msg("processing failed")
		os.Exit(1)
	}
}

func loadConfig(o options) (config.ProcessingConfig, error) {
	cfg := config.Default()

	if o.configPath != "" {
		var err error

		cfg, err = config.Load(o.configPath)
		if err != nil {
			return cfg, err
		}
	}

	if o.bursts != "" {
		cfg.Bursts = strings.Split(o.bursts, ",")
	}

	if o.outputDir != "" {
		cfg.OutputDir = o.outputDir
		cfg.DataDir, cfg.WorkDir = "", ""
	}

	cfg = cfg.WithDerivedDirs()

	return cfg, cfg.Validate()
}

func parseSteps(list string) []pipeline.Step {
	var steps []pipeline.Step

	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, pipeline.Step(s))
		}
	}

	return steps
}

func orDefault(path, dir, name string) string {
	if path != "" {
		return path
	}

	return filepath.Join(dir, name)
}

func run(o options, log zerolog.Logger) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return insarerr.ExternalIO(err, "unable to create output directory")
	}

	var (
		rasters raster.Store = store.NewMemoryStore()
		history *db.DB
	)

	if !o.memory {
		history, err = db.Open(orDefault(o.dbPath, cfg.OutputDir, "insar.db"), logger.Component(log, "db"))
		if err != nil {
			return err
		}
		defer history.Close()

		rasters = history.Rasters()
	}

	if o.history > 0 {
		if history == nil {
			return insarerr.Configf("run history needs a database")
		}

		return printHistory(history, o.history)
	}

	gen := synthetic.New(rasters)
	msr := measure.NewDefaultMeasure()
	dot := drawer.NewDOTDrawer(orDefault(o.dotPath, cfg.OutputDir, "pipeline.dot"))

	supOpts := []registry.Option{
		registry.WithLogger(logger.Component(log, "pipeline")),
		registry.WithPipelineOptions(
			pipeline.WithStore(rasters),
			pipeline.WithCollaborators(pipeline.Collaborators{
				Scenes:   gen,
				DEM:      gen,
				Landmask: gen,
				Stacker:  gen,
				Aligner:  gen,
				Geocoder: gen,
				Renderer: render.NewPlotter(filepath.Join(cfg.OutputDir, "plots")),
			}),
			pipeline.WithHooks(measure.PipelineMeasure(msr), drawer.PipelineDrawer(dot, msr)),
		),
	}
	if history != nil {
		supOpts = append(supOpts, registry.WithHistory(history))
	}

	sup := registry.New(supOpts...)
	defer sup.Close()

	events, unsubscribe := sup.Subscribe()
	defer unsubscribe()

	id, err := sup.Start(cfg, parseSteps(o.steps)...)
	if err != nil {
		return err
	}

	log.Info().Str("run_id", id.String()).Msg("run started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go printProgress(events, id)

	go func() {
		<-ctx.Done()
		if err := sup.Cancel(id); err != nil {
			log.Error().Err(err).Msg("unable to cancel run")
		}
	}()

	report, err := sup.Wait(context.Background(), id)
	if err != nil {
		return err
	}

	snap, err := sup.Status(id)
	if err != nil {
		return err
	}

	fmt.Println(snap.String())

	if err := writeReport(orDefault(o.reportPath, cfg.OutputDir, "report.html"), id, snap); err != nil {
		log.Warn().Err(err).Msg("unable to write run report")
	}

	summary, err := sup.Summary(id)
	if err != nil {
		return err
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")

	if err := out.Encode(summary); err != nil {
		return errors.Wrap(err, "unable to print summary")
	}

	return report.Err
}

func printProgress(events <-chan registry.Event, id uuid.UUID) {
	for ev := range events {
		if ev.RunID != id || ev.Kind != registry.EventProgress {
			continue
		}

		fmt.Printf("[%s] %5.1f%% %s\n", ev.Step, ev.Progress, ev.Message)
	}
}

func writeReport(path string, id uuid.UUID, snap pipeline.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return insarerr.ExternalIO(err, "unable to create report")
	}
	defer f.Close()

	return render.WriteReport(f, "InSAR run "+id.String(), snap)
}

func printHistory(d *db.DB, limit int) error {
	ctx := context.Background()

	ids, err := d.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}

	for _, id := range ids {
		rec, err := d.LoadRun(ctx, id)
		if err != nil {
			return err
		}

		fmt.Printf("%s  %-9s  %s  %d/%d steps  %s\n",
			rec.ID, rec.Status, rec.StartedAt.Format("2006-01-02 15:04:05"),
			len(rec.Steps), rec.TotalSteps, rec.Error)
	}

	return nil
}
