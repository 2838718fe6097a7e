package segment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nh3flux/domain/core"
	"nh3flux/domain/observation"
)

func rec(hoursIn float64, ev core.EventID, ph core.PhaseID) observation.Record {
	base := time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC)
	return observation.Record{
		Timestamp: base.Add(time.Duration(hoursIn * float64(time.Hour))),
		EventID:   ev,
		PhaseID:   ph,
		NH3:       3.0,
		Predicted: 2.5,
	}
}

// baseline, event 1, post 1, event 2, post 2
func eventDataset() observation.Dataset {
	return observation.Dataset{
		rec(0, "0", "0"),
		rec(1, "0", "0"),
		rec(2, "1", "0"),
		rec(3, "1", "0"),
		rec(4, "0", "1"),
		rec(5, "0", "1"),
		rec(6, "2", "0"),
		rec(7, "0", "2"),
	}
}

func segmentByName(t *testing.T, segs []Segment, name string) Segment {
	t.Helper()
	for _, s := range segs {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("segment %q not found", name)
	return Segment{}
}

func TestBuildCoversEveryRecordOnEachAxis(t *testing.T) {
	ds := eventDataset()
	res := Build(ds)

	eventTotal, phaseTotal := 0, 0
	for _, s := range res.Segments {
		switch s.Axis {
		case AxisEvent:
			eventTotal += len(s.Points)
		case AxisPhase:
			phaseTotal += len(s.Points)
		}
	}

	// event_0 excludes nothing, so the event axis partitions the dataset; the
	// phase axis loses the phase-"0" records at or after the first event,
	// which the baseline bound gives up (indices 2, 3, 6 here).
	assert.Equal(t, ds.Len(), eventTotal)
	assert.Equal(t, ds.Len()-3, phaseTotal)
	assert.False(t, res.BaselineUnbounded)
}

func TestBuildBoundsBaselineByFirstEvent(t *testing.T) {
	ds := eventDataset()
	res := Build(ds)

	firstEvent := ds[2].Timestamp

	baseline := segmentByName(t, res.Segments, "post_0")
	require.NotEmpty(t, baseline.Points)
	for _, p := range baseline.Points {
		assert.True(t, p.Timestamp.Before(firstEvent),
			"baseline point at %s is not before the first event", p.Timestamp)
	}

	eventOne := segmentByName(t, res.Segments, "event_1")
	require.Len(t, eventOne.Points, 2)
	for _, p := range eventOne.Points {
		assert.False(t, p.Timestamp.Before(firstEvent))
	}
}

func TestBuildSegmentPerLevel(t *testing.T) {
	res := Build(eventDataset())

	names := make(map[string]bool)
	for _, s := range res.Segments {
		names[s.Name] = true
	}
	for _, want := range []string{"event_0", "event_1", "event_2", "post_0", "post_1", "post_2"} {
		assert.True(t, names[want], "missing segment %s", want)
	}

	postTwo := segmentByName(t, res.Segments, "post_2")
	assert.Len(t, postTwo.Points, 1)
}

func TestBuildWithoutEventFallsBackToUnboundedBaseline(t *testing.T) {
	ds := observation.Dataset{
		rec(0, "0", "0"),
		rec(1, "0", "0"),
		rec(2, "0", "0"),
	}
	res := Build(ds)

	assert.True(t, res.BaselineUnbounded)
	baseline := segmentByName(t, res.Segments, "post_0")
	assert.Len(t, baseline.Points, ds.Len())
}

func TestBuildCarriesObservedAndPredicted(t *testing.T) {
	res := Build(eventDataset())
	baseline := segmentByName(t, res.Segments, "post_0")

	require.NotEmpty(t, baseline.Points)
	assert.Equal(t, 3.0, baseline.Points[0].Observed)
	assert.Equal(t, 2.5, baseline.Points[0].Predicted)
}

func TestEmptySegment(t *testing.T) {
	s := Segment{Name: "event_9", Axis: AxisEvent}
	assert.True(t, s.Empty())
}
