// Package app wires the pipeline stages into a single run: ingest, clean,
// sample, fit, predict, segment, diagnose, then emit the artifacts. The
// modeling stages run strictly in sequence; only artifact emission at the end
// fans out.
package app

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"nh3flux/adapters/diagnostics"
	"nh3flux/adapters/gamm"
	"nh3flux/adapters/ingest"
	"nh3flux/adapters/render"
	"nh3flux/adapters/sampler"
	"nh3flux/adapters/store"
	"nh3flux/domain/core"
	"nh3flux/domain/modelspec"
	"nh3flux/domain/observation"
	"nh3flux/domain/segment"
	"nh3flux/internal/config"
	"nh3flux/internal/errors"
	"nh3flux/internal/log"
	"nh3flux/ports"
)

const samplerStream = "stratified_sampler"

// residualACFLags bounds the ACF trace printed in the report.
const residualACFLags = 5

// Pipeline runs the full modeling workflow for one input file
type Pipeline struct {
	cfg *config.Config
	rng ports.RNGPort
}

// New creates a pipeline bound to a configuration and a seeded RNG source
func New(cfg *config.Config, rng ports.RNGPort) *Pipeline {
	return &Pipeline{cfg: cfg, rng: rng}
}

// RunResult summarizes one completed run
type RunResult struct {
	RunID      core.RunID
	Drop       observation.DropReport
	SampleSize int

	Model     *gamm.Model
	Augmented observation.Dataset
	Segments  segment.BuildResult

	Diagnostic diagnostics.Result

	ChartPath  string
	ReportPath string
	StorePath  string
}

// Run executes the pipeline end to end and returns the run summary. The fit
// stages abort the run on failure; artifact emission failures also abort, so
// a successful return means every artifact exists on disk.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	runID := core.NewRunID()
	start := time.Now()
	log.Infow("pipeline started", "run_id", runID, "input", p.cfg.Input.Path)

	reader := ingest.NewDataReader(p.cfg.Input.Path, p.cfg.Input.Format, p.cfg.Input.Columns)
	ds, drop, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "ingest stage failed")
	}
	log.Infow("ingest complete", "rows", drop.Total, "kept", drop.Kept)
	for reason, n := range drop.Dropped {
		log.Warnw("rows dropped", "reason", reason, "count", n)
	}

	rng, err := p.rng.SeededStream(ctx, samplerStream, p.cfg.Sampling.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to seed the sampler stream")
	}
	sampled, err := sampler.Stratified(ds, p.cfg.Sampling.Fraction, rng)
	if err != nil {
		return nil, errors.Wrap(err, "sampling stage failed")
	}
	sampled.SortByTime()
	log.Infow("sampling complete",
		"fraction", p.cfg.Sampling.Fraction,
		"seed", p.cfg.Sampling.Seed,
		"sample_size", sampled.Len())

	spec, err := modelspec.Default(
		p.cfg.Model.CyclicBasisDim, p.cfg.Model.SmoothBasisDim,
		p.cfg.Model.ARMAP, p.cfg.Model.ARMAQ)
	if err != nil {
		return nil, errors.Wrap(err, "model specification is invalid")
	}

	model, err := gamm.Fit(sampled, spec)
	if err != nil {
		return nil, errors.Wrap(err, "fit stage failed")
	}
	comp := model.VarianceComponents()
	log.Infow("fit complete",
		"deviance", model.Deviance(),
		"edf_total", model.EDF()["total"],
		"dispersion", comp.Dispersion,
		"day_intercept_var", comp.DayInterceptVar,
		"arma_phi", comp.ARMAPhi,
		"arma_theta", comp.ARMATheta)

	augmented := model.Annotate(model.TrainingData())

	segs := segment.Build(augmented)
	if segs.BaselineUnbounded {
		log.Warnw("no precipitation event observed; baseline spans the whole dataset", "run_id", runID)
	}
	log.Infow("segmentation complete", "segments", len(segs.Segments))

	diag := diagnostics.CheckAutocorrelation(model)
	if diag.Computed() {
		log.Infow("serial-correlation diagnostic",
			"statistic", diag.Statistic, "p_value", diag.PValue, "lag", diag.Lag)
	} else {
		log.Warnw("serial-correlation diagnostic unavailable",
			"status", string(diag.Status), "reason", diag.Reason)
	}

	result := &RunResult{
		RunID:      runID,
		Drop:       drop,
		SampleSize: sampled.Len(),
		Model:      model,
		Augmented:  augmented,
		Segments:   segs,
		Diagnostic: diag,
		ChartPath:  filepath.Join(p.cfg.Output.Dir, p.cfg.Output.ChartFile),
		ReportPath: filepath.Join(p.cfg.Output.Dir, p.cfg.Output.ReportFile),
		StorePath:  filepath.Join(p.cfg.Output.Dir, p.cfg.Output.StoreFile),
	}

	if err := p.emitArtifacts(ctx, result); err != nil {
		return nil, err
	}

	log.Infow("pipeline finished", "run_id", runID, "elapsed", time.Since(start))
	return result, nil
}

// emitArtifacts writes the sqlite store, the chart page, and the run report
// concurrently. The three writers touch disjoint files.
func (p *Pipeline) emitArtifacts(ctx context.Context, res *RunResult) error {
	if err := os.MkdirAll(p.cfg.Output.Dir, 0o755); err != nil {
		return errors.StoreError("failed to create output directory", err)
	}

	report := render.ReportData{
		RunID:             res.RunID,
		GeneratedAt:       time.Now(),
		Fraction:          p.cfg.Sampling.Fraction,
		Seed:              p.cfg.Sampling.Seed,
		Drop:              res.Drop,
		SampleSize:        res.SampleSize,
		Coefs:             res.Model.CoefTable(),
		EDF:               res.Model.EDF(),
		Components:        res.Model.VarianceComponents(),
		Deviance:          res.Model.Deviance(),
		Segments:          res.Segments.Segments,
		BaselineUnbounded: res.Segments.BaselineUnbounded,
		Diagnostic:        res.Diagnostic,
	}
	if resid, err := res.Model.Residuals(gamm.ResidualDeviance); err == nil {
		report.ResidualACF = diagnostics.ACF(resid, residualACFLags)
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.persistRun(res)
	})
	g.Go(func() error {
		return render.WriteChart(res.ChartPath, res.Augmented, res.Segments.Segments)
	})
	g.Go(func() error {
		return render.WriteReport(res.ReportPath, report)
	})
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "artifact emission failed")
	}

	log.Infow("artifacts written",
		"store", res.StorePath, "chart", res.ChartPath, "report", res.ReportPath)
	return nil
}

func (p *Pipeline) persistRun(res *RunResult) error {
	st, err := store.Open(res.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	row := store.RunRow{
		ID:           res.RunID.String(),
		CreatedAt:    time.Now().UTC(),
		Fraction:     p.cfg.Sampling.Fraction,
		Seed:         p.cfg.Sampling.Seed,
		RecordsTotal: res.Drop.Total,
		RecordsKept:  res.Drop.Kept,
		SampleSize:   res.SampleSize,
		Deviance:     res.Model.Deviance(),
		DiagStatus:   string(res.Diagnostic.Status),
	}
	if res.Diagnostic.Computed() {
		stat, pv := res.Diagnostic.Statistic, res.Diagnostic.PValue
		row.DiagStatistic = &stat
		row.DiagPValue = &pv
	}

	if err := st.SaveRun(row); err != nil {
		return err
	}
	if err := st.SaveObservations(res.RunID, res.Augmented); err != nil {
		return err
	}
	return st.SaveSegments(res.RunID, res.Segments.Segments)
}
