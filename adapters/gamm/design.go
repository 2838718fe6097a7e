package gamm

import (
	"sort"

	"nh3flux/domain/core"
	"nh3flux/domain/modelspec"
	"nh3flux/domain/observation"
)

// smoothBlock is one smooth term mapped into the design matrix: its basis,
// its column span, its centering offsets, and its smoothing parameter.
type smoothBlock struct {
	term   modelspec.SmoothTerm
	basis  basis
	offset int
	ncols  int
	center []float64 // training-data column means, subtracted for identifiability
	lambda float64
}

// reBlock is the per-day random intercept expressed as a ridge-penalized
// dummy block (one column per distinct day).
type reBlock struct {
	levels map[int]int // day index -> column within block
	days   []int
	offset int
	ncols  int
	lambda float64
}

// design maps records onto rows of the model matrix:
// intercept | event dummies | phase dummies | smooth blocks | random intercepts.
type design struct {
	spec        *modelspec.Spec
	eventLevels []core.EventID // dummies for levels[1:]
	phaseLevels []core.PhaseID
	eventOffset int
	phaseOffset int
	smooths     []*smoothBlock
	re          *reBlock
	p           int // total columns including the random-effect block
	pFixed      int // columns excluding the random-effect block
}

func buildDesign(ds observation.Dataset, spec *modelspec.Spec) (*design, error) {
	if len(ds) == 0 {
		return nil, core.ErrEmptyDataset
	}

	d := &design{
		spec:        spec,
		eventLevels: ds.EventLevels(),
		phaseLevels: ds.PhaseLevels(),
	}

	col := 1 // intercept at column 0
	d.eventOffset = col
	col += len(d.eventLevels) - 1
	d.phaseOffset = col
	col += len(d.phaseLevels) - 1

	for _, term := range spec.Smooths {
		var b basis
		switch term.Basis {
		case modelspec.BasisCyclic:
			b = newFourierBasis(term.Period, term.Dim)
		case modelspec.BasisBSpline:
			lo, hi := covRange(ds, term.Covariate)
			b = newBSplineBasis(lo, hi, term.Dim)
		}
		sb := &smoothBlock{
			term:   term,
			basis:  b,
			offset: col,
			ncols:  b.Dim(),
			lambda: 1,
		}
		col += sb.ncols
		d.smooths = append(d.smooths, sb)
	}
	d.pFixed = col

	if spec.RandomIntercept != "" {
		days := distinctDays(ds)
		levels := make(map[int]int, len(days))
		for i, day := range days {
			levels[day] = i
		}
		d.re = &reBlock{
			levels: levels,
			days:   days,
			offset: col,
			ncols:  len(days),
			lambda: 1,
		}
		col += d.re.ncols
	}
	d.p = col

	d.computeCenters(ds)
	return d, nil
}

// computeCenters records each smooth block's training-column means so the
// blocks can be centered; uncentered smooth bases are confounded with the
// intercept.
func (d *design) computeCenters(ds observation.Dataset) {
	for _, sb := range d.smooths {
		sums := make([]float64, sb.ncols)
		buf := make([]float64, sb.ncols)
		for _, r := range ds {
			sb.basis.Eval(covValue(r, sb.term.Covariate), buf)
			for j, v := range buf {
				sums[j] += v
			}
		}
		sb.center = make([]float64, sb.ncols)
		for j := range sums {
			sb.center[j] = sums[j] / float64(len(ds))
		}
	}
}

// row fills buf (length p) with the design row for rec. When includeRE is
// false the random-effect columns stay zero.
func (d *design) row(rec observation.Record, includeRE bool, buf []float64) {
	for i := range buf {
		buf[i] = 0
	}
	buf[0] = 1

	for i, lv := range d.eventLevels[1:] {
		if rec.EventID == lv {
			buf[d.eventOffset+i] = 1
		}
	}
	for i, lv := range d.phaseLevels[1:] {
		if rec.PhaseID == lv {
			buf[d.phaseOffset+i] = 1
		}
	}

	tmp := make([]float64, 0, 32)
	for _, sb := range d.smooths {
		if cap(tmp) < sb.ncols {
			tmp = make([]float64, sb.ncols)
		}
		t := tmp[:sb.ncols]
		sb.basis.Eval(covValue(rec, sb.term.Covariate), t)
		for j := range t {
			buf[sb.offset+j] = t[j] - sb.center[j]
		}
	}

	if includeRE && d.re != nil {
		if j, ok := d.re.levels[rec.DayIndex]; ok {
			buf[d.re.offset+j] = 1
		}
	}
}

// penalizedBlocks returns every penalized block as (offset, lambda, penalty).
func (d *design) penalizedBlocks() []penBlock {
	blocks := make([]penBlock, 0, len(d.smooths)+1)
	for _, sb := range d.smooths {
		blocks = append(blocks, penBlock{
			name:    string(sb.term.Covariate),
			offset:  sb.offset,
			ncols:   sb.ncols,
			penalty: sb.basis.Penalty(),
			lambda:  sb.lambda,
		})
	}
	if d.re != nil {
		ident := zeroMatrix(d.re.ncols, d.re.ncols)
		for i := 0; i < d.re.ncols; i++ {
			ident[i][i] = 1
		}
		blocks = append(blocks, penBlock{
			name:    "day_intercept",
			offset:  d.re.offset,
			ncols:   d.re.ncols,
			penalty: ident,
			lambda:  d.re.lambda,
		})
	}
	return blocks
}

// penBlock is one penalized span of design columns
type penBlock struct {
	name    string
	offset  int
	ncols   int
	penalty [][]float64
	lambda  float64
}

func (d *design) setLambda(i int, lambda float64) {
	if i < len(d.smooths) {
		d.smooths[i].lambda = lambda
		return
	}
	if d.re != nil {
		d.re.lambda = lambda
	}
}

func (d *design) numPenalized() int {
	n := len(d.smooths)
	if d.re != nil {
		n++
	}
	return n
}

func covValue(r observation.Record, cov modelspec.Covariate) float64 {
	switch cov {
	case modelspec.CovHourOfDay:
		return r.HourOfDay
	case modelspec.CovWindSpeed:
		return r.WindSpeed
	case modelspec.CovTemperature:
		return r.Temperature
	case modelspec.CovDayIndex:
		return float64(r.DayIndex)
	}
	return 0
}

func covRange(ds observation.Dataset, cov modelspec.Covariate) (lo, hi float64) {
	lo = covValue(ds[0], cov)
	hi = lo
	for _, r := range ds[1:] {
		v := covValue(r, cov)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func distinctDays(ds observation.Dataset) []int {
	seen := make(map[int]bool)
	var days []int
	for _, r := range ds {
		if !seen[r.DayIndex] {
			seen[r.DayIndex] = true
			days = append(days, r.DayIndex)
		}
	}
	sort.Ints(days)
	return days
}
