package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nh3flux/internal/config"
	"nh3flux/internal/testkit"
)

const timeLayout = "2006-01-02 15:04:05"

func defaultColumns() config.ColumnMap {
	return config.ColumnMap{
		Timestamp:   "timestamp",
		DayIndex:    "day",
		HourOfDay:   "hour",
		Temperature: "temperature",
		WindSpeed:   "wind_speed",
		RainEvent:   "rain_event",
		PostEvent:   "post_event",
		NH3:         "nh3",
		TimeFormat:  timeLayout,
	}
}

func writeSyntheticCSV(t *testing.T) (string, int) {
	t.Helper()
	opt := testkit.DefaultSimOptions()
	opt.Days = 3
	rows := testkit.GenerateRows(opt, timeLayout)

	path := filepath.Join(t.TempDir(), "emissions.csv")
	require.NoError(t, testkit.WriteCSV(path, rows))
	return path, len(rows)
}

func TestReadCSVRoundTrip(t *testing.T) {
	path, nrows := writeSyntheticCSV(t)

	reader := NewDataReader(path, "", defaultColumns())
	ds, report, err := reader.Read()
	require.NoError(t, err)

	assert.Equal(t, nrows, report.Total)
	assert.Equal(t, nrows, report.Kept)
	assert.Equal(t, nrows, ds.Len())
	assert.Empty(t, report.Dropped)

	for _, r := range ds {
		assert.Greater(t, r.NH3, 0.0)
	}
}

func TestReadInfersFormatFromExtension(t *testing.T) {
	path, _ := writeSyntheticCSV(t)

	reader := NewDataReader(path, "", defaultColumns())
	assert.Equal(t, "csv", reader.fileType)
}

func TestReadMissingFile(t *testing.T) {
	reader := NewDataReader("/nonexistent/emissions.csv", "csv", defaultColumns())
	_, _, err := reader.Read()
	assert.Error(t, err)
}

func TestReadMissingColumn(t *testing.T) {
	path, _ := writeSyntheticCSV(t)

	cols := defaultColumns()
	cols.NH3 = "flux"
	reader := NewDataReader(path, "csv", cols)
	_, _, err := reader.Read()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flux")
}

func TestReadHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path,
		[]byte("timestamp,day,hour,temperature,wind_speed,rain_event,post_event,nh3\n"), 0o644))

	reader := NewDataReader(path, "csv", defaultColumns())
	_, _, err := reader.Read()
	assert.Error(t, err)
}

func TestReadHeaderCaseInsensitive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upper.csv")
	content := "Timestamp,Day,Hour,Temperature,Wind_Speed,Rain_Event,Post_Event,NH3\n" +
		"2018-06-01 13:00:00,0,13.0,21.5,2.8,0,0,4.2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reader := NewDataReader(path, "csv", defaultColumns())
	ds, _, err := reader.Read()
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
}

func TestReadDropsMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixed.csv")
	content := "timestamp,day,hour,temperature,wind_speed,rain_event,post_event,nh3\n" +
		"2018-06-01 13:00:00,0,13.0,21.5,2.8,0,0,4.2\n" +
		"2018-06-01 14:00:00,0,14.0,21.5,2.8,0,0,-1\n" +
		"not a time,0,15.0,21.5,2.8,0,0,4.2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reader := NewDataReader(path, "csv", defaultColumns())
	ds, report, err := reader.Read()
	require.NoError(t, err)

	assert.Equal(t, 1, ds.Len())
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Total-report.Kept)
}
