// Package segment partitions the predicted dataset into the named views the
// viewer renders: one per precipitation event, one per post-event phase, with
// the pre-first-event baseline carved out of phase "0".
//
// Segments are declarative: a table of (name, predicate) definitions is built
// once from the observed levels and evaluated uniformly, so adding a segment
// never touches the others.
package segment

import (
	"fmt"
	"time"

	"nh3flux/domain/core"
	"nh3flux/domain/observation"
)

// Axis distinguishes the two segmentation axes
type Axis string

const (
	AxisEvent Axis = "event"
	AxisPhase Axis = "phase"
)

// Definition is one named filter over the dataset
type Definition struct {
	Name  string
	Axis  Axis
	Match func(observation.Record) bool
}

// Point is one (timestamp, observed, predicted) triple exposed to the viewer
type Point struct {
	Timestamp time.Time
	Observed  float64
	Predicted float64
}

// Segment is a materialized view: a definition plus the matching points.
// It references the dataset's values; it owns no records.
type Segment struct {
	Name   string
	Axis   Axis
	Points []Point
}

// Empty reports whether the segment matched no records
func (s Segment) Empty() bool { return len(s.Points) == 0 }

// BuildResult carries the segments plus the baseline-fallback flag for the
// run report.
type BuildResult struct {
	Segments []Segment
	// BaselineUnbounded is true when no record carries event id "1", in
	// which case the baseline segment spans the entire dataset.
	BaselineUnbounded bool
}

// Build constructs the segment table from the observed event and phase levels
// and evaluates it against ds. ds must already be sorted by time.
//
// The phase-"0" baseline is bounded to timestamps strictly before the first
// event-"1" record, and the event-"1" segment to timestamps at or after it.
// When no event-"1" record exists the bound is undefined; the documented
// fallback is a whole-dataset baseline, flagged on the result.
func Build(ds observation.Dataset) BuildResult {
	firstEvent, haveEvent := firstEventOneTime(ds)

	defs := Definitions(ds.EventLevels(), ds.PhaseLevels(), firstEvent, haveEvent)

	segments := make([]Segment, 0, len(defs))
	for _, def := range defs {
		seg := Segment{Name: def.Name, Axis: def.Axis}
		for _, r := range ds {
			if def.Match(r) {
				seg.Points = append(seg.Points, Point{
					Timestamp: r.Timestamp,
					Observed:  r.NH3,
					Predicted: r.Predicted,
				})
			}
		}
		segments = append(segments, seg)
	}

	return BuildResult{
		Segments:          segments,
		BaselineUnbounded: !haveEvent,
	}
}

// Definitions builds the declarative segment table for the given levels.
func Definitions(events []core.EventID, phases []core.PhaseID, firstEvent time.Time, haveEvent bool) []Definition {
	var defs []Definition

	for _, ev := range events {
		ev := ev
		match := func(r observation.Record) bool { return r.EventID == ev }
		if ev == core.EventID("1") && haveEvent {
			// Symmetric complement of the baseline bound.
			match = func(r observation.Record) bool {
				return r.EventID == ev && !r.Timestamp.Before(firstEvent)
			}
		}
		defs = append(defs, Definition{
			Name:  fmt.Sprintf("event_%s", ev),
			Axis:  AxisEvent,
			Match: match,
		})
	}

	for _, ph := range phases {
		ph := ph
		match := func(r observation.Record) bool { return r.PhaseID == ph }
		if ph == core.NoPhase && haveEvent {
			match = func(r observation.Record) bool {
				return r.PhaseID == ph && r.Timestamp.Before(firstEvent)
			}
		}
		defs = append(defs, Definition{
			Name:  fmt.Sprintf("post_%s", ph),
			Axis:  AxisPhase,
			Match: match,
		})
	}

	return defs
}

func firstEventOneTime(ds observation.Dataset) (time.Time, bool) {
	for _, r := range ds {
		if r.EventID == core.EventID("1") {
			return r.Timestamp, true
		}
	}
	return time.Time{}, false
}
