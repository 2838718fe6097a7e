// Package observation holds the cleaned measurement records the whole
// pipeline operates on: one NH3 emission reading per row, with the covariates
// the model uses and the precipitation-event labels the segmenter uses.
package observation

import (
	"math"
	"strconv"
	"strings"
	"time"

	"nh3flux/domain/core"
)

// Record is one cleaned feedlot measurement.
type Record struct {
	Timestamp   time.Time
	DayIndex    int
	HourOfDay   float64 // 0-24, cyclic
	Temperature float64
	WindSpeed   float64
	EventID     core.EventID
	PhaseID     core.PhaseID
	NH3         float64 // strictly positive (Gamma response)

	// Predicted is the mean-response-scale model prediction, attached by
	// the predictor stage. NaN until then.
	Predicted float64
}

// TimeBlock is the coarse 24-hour grouping key used by the stratified
// sampler. It is derived from the absolute timestamp, not from DayIndex.
func (r Record) TimeBlock() int64 {
	return int64(math.Floor(float64(r.Timestamp.Unix()) / 86400.0))
}

// Dataset is an ordered collection of records. Stages hand fresh datasets
// downstream; source rows are never mutated in place.
type Dataset []Record

// Len returns the number of records
func (ds Dataset) Len() int { return len(ds) }

// Clone returns an independent copy of the dataset
func (ds Dataset) Clone() Dataset {
	out := make(Dataset, len(ds))
	copy(out, ds)
	return out
}

// SortByTime orders records by timestamp ascending, in place. The ARMA
// correlation structure and the segmenter both require time order.
func (ds Dataset) SortByTime() {
	sortRecords(ds)
}

// EventLevels returns the distinct precipitation-event ids in first-seen order
// after sorting lexicographically with "0" first.
func (ds Dataset) EventLevels() []core.EventID {
	return eventLevels(ds)
}

// PhaseLevels returns the distinct post-event phase ids, "0" first.
func (ds Dataset) PhaseLevels() []core.PhaseID {
	return phaseLevels(ds)
}

// Row is one raw tabular input row, untyped. Missing cells are empty strings.
type Row struct {
	Timestamp   string
	DayIndex    string
	HourOfDay   string
	Temperature string
	WindSpeed   string
	RainEvent   string
	PostEvent   string
	NH3         string
}

// DropReason classifies why a raw row was excluded during cleaning.
type DropReason string

const (
	DropBadTimestamp  DropReason = "bad_timestamp"
	DropMissingField  DropReason = "missing_field"
	DropBadNumeric    DropReason = "bad_numeric"
	DropNonPositive   DropReason = "non_positive_response"
	DropNegativeWind  DropReason = "negative_wind_speed"
	DropHourOutOfBand DropReason = "hour_out_of_range"
)

// DropReport counts excluded rows per reason. Dropped rows are a recovered
// condition, not an error; the counts are surfaced alongside normal output.
type DropReport struct {
	Total   int
	Kept    int
	Dropped map[DropReason]int
}

// Clean parses and coerces raw rows into records, excluding (never imputing)
// any row that fails to parse, has a missing field, or violates the Gamma
// response invariant NH3 > 0.
func Clean(rows []Row, timeLayout string) (Dataset, DropReport) {
	report := DropReport{
		Total:   len(rows),
		Dropped: make(map[DropReason]int),
	}

	ds := make(Dataset, 0, len(rows))
	for _, row := range rows {
		rec, reason, ok := cleanRow(row, timeLayout)
		if !ok {
			report.Dropped[reason]++
			continue
		}
		ds = append(ds, rec)
	}
	report.Kept = len(ds)
	return ds, report
}

func cleanRow(row Row, timeLayout string) (Record, DropReason, bool) {
	fields := []string{
		row.Timestamp, row.DayIndex, row.HourOfDay, row.Temperature,
		row.WindSpeed, row.RainEvent, row.PostEvent, row.NH3,
	}
	for _, f := range fields {
		if isMissing(f) {
			return Record{}, DropMissingField, false
		}
	}

	ts, err := time.Parse(timeLayout, strings.TrimSpace(row.Timestamp))
	if err != nil {
		return Record{}, DropBadTimestamp, false
	}

	day, err := parseDayIndex(row.DayIndex)
	if err != nil {
		return Record{}, DropBadNumeric, false
	}

	hour, err := parseFloat(row.HourOfDay)
	if err != nil {
		return Record{}, DropBadNumeric, false
	}
	if hour < 0 || hour > 24 {
		return Record{}, DropHourOutOfBand, false
	}

	temp, err := parseFloat(row.Temperature)
	if err != nil {
		return Record{}, DropBadNumeric, false
	}

	wind, err := parseFloat(row.WindSpeed)
	if err != nil {
		return Record{}, DropBadNumeric, false
	}
	if wind < 0 {
		return Record{}, DropNegativeWind, false
	}

	nh3, err := parseFloat(row.NH3)
	if err != nil {
		return Record{}, DropBadNumeric, false
	}
	if nh3 <= 0 {
		return Record{}, DropNonPositive, false
	}

	return Record{
		Timestamp:   ts,
		DayIndex:    day,
		HourOfDay:   hour,
		Temperature: temp,
		WindSpeed:   wind,
		EventID:     core.EventID(normalizeLabel(row.RainEvent)),
		PhaseID:     core.PhaseID(normalizeLabel(row.PostEvent)),
		NH3:         nh3,
		Predicted:   math.NaN(),
	}, "", true
}

func isMissing(s string) bool {
	t := strings.TrimSpace(s)
	return t == "" || strings.EqualFold(t, "na") || strings.EqualFold(t, "nan") || strings.EqualFold(t, "null")
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrRange
	}
	return v, nil
}

// parseDayIndex casts the day column to an integer; the source sometimes
// carries it as a float ("12.0").
func parseDayIndex(s string) (int, error) {
	t := strings.TrimSpace(s)
	if v, err := strconv.Atoi(t); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, err
	}
	return int(math.Round(f)), nil
}

// normalizeLabel coerces the event/phase column to a categorical label.
// Numeric-looking values keep their integer form so "2.0" and "2" collapse
// into one level.
func normalizeLabel(s string) string {
	t := strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		return strconv.Itoa(int(math.Round(f)))
	}
	return t
}
