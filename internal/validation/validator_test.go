package validation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilbao-transit/gtfsjson/internal/fetch"
	"github.com/bilbao-transit/gtfsjson/internal/metrics"
)

var validFeedFiles = map[string]string{
	"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
		"MB,Metro Bilbao,https://www.metrobilbao.eus,Europe/Madrid\n",
	"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
		"ETX,Etxebarri,43.2470,-2.8930\n" +
		"PLE,Plentzia,43.4050,-2.9480\n",
	"routes.txt": "route_id,route_short_name,route_long_name,route_type\n" +
		"L1,L1,Etxebarri - Plentzia,1\n",
	"trips.txt": "route_id,service_id,trip_id,shape_id\n" +
		"L1,WD,T1,SH1\n",
	"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"T1,08:00:00,08:00:00,ETX,1\n" +
		"T1,08:30:00,08:30:00,PLE,2\n",
	"shapes.txt": "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\n" +
		"SH1,43.2470,-2.8930,1\n" +
		"SH1,43.4050,-2.9480,2\n",
	"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
		"WD,1,1,1,1,1,0,0,20260101,20261231\n",
	"calendar_dates.txt": "service_id,date,exception_type\n" +
		"WD,20261225,2\n",
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

type fakeFetcher struct {
	dir   string
	files map[string]string
	err   error
	calls int
}

func (f *fakeFetcher) Update(ctx context.Context) (fetch.UpdateResult, error) {
	f.calls++
	if f.err != nil {
		return fetch.UpdateResult{}, f.err
	}
	for name, content := range f.files {
		if err := os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o644); err != nil {
			return fetch.UpdateResult{}, err
		}
	}
	return fetch.UpdateResult{FirstInstall: true}, nil
}

func TestValidate_CleanFeed(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, validFeedFiles)
	m := metrics.New()

	result := NewValidator(dir, bilbaoBounds, nil, m, nil).Validate(context.Background())

	assert.True(t, result.Passed)
	assert.False(t, result.Recovered)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ValidationFindingsTotal.WithLabelValues("error")))
}

func TestValidate_ReportsAllFindings(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{}
	for k, v := range validFeedFiles {
		files[k] = v
	}
	delete(files, "shapes.txt")
	files["stops.txt"] += "ZERO,Null Island,0,0\n"
	files["stop_times.txt"] += "GHOST,09:00:00,09:00:00,ETX,1\n"
	writeFiles(t, dir, files)
	m := metrics.New()

	result := NewValidator(dir, bilbaoBounds, nil, m, nil).Validate(context.Background())

	assert.False(t, result.Passed)
	assert.Contains(t, messages(result.Errors), "Found 1 stops with invalid coordinates")
	assert.Contains(t, messages(result.Errors), "Found 1 stop_times with invalid trip_id references")
	assert.Contains(t, messages(result.Warnings), "File not found: shapes.txt")
	assert.Contains(t, messages(result.Warnings), "Found 1 trips with invalid shape_id references")
	assert.Equal(t, float64(len(result.Errors)), testutil.ToFloat64(m.ValidationFindingsTotal.WithLabelValues("error")))
}

func TestValidate_EmptyRequiredTable(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{}
	for k, v := range validFeedFiles {
		files[k] = v
	}
	files["routes.txt"] = "route_id,route_short_name,route_long_name,route_type\n"
	writeFiles(t, dir, files)

	result := NewValidator(dir, bilbaoBounds, nil, nil, nil).Validate(context.Background())

	assert.False(t, result.Passed)
	assert.Contains(t, messages(result.Errors), "Required file is missing or empty: routes.txt")
}

func TestValidate_RecoversByFetchingOnce(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{dir: dir, files: validFeedFiles}

	result := NewValidator(dir, bilbaoBounds, fetcher, nil, nil).Validate(context.Background())

	assert.Equal(t, 1, fetcher.calls)
	assert.True(t, result.Recovered)
	assert.True(t, result.Passed)
	assert.Empty(t, result.Warnings, "notices from the empty load are not reported")
}

func TestValidate_RecoveryFailures(t *testing.T) {
	testCases := []struct {
		name    string
		fetcher *fakeFetcher
		message string
	}{
		{
			name:    "FetchError",
			fetcher: &fakeFetcher{err: errors.New("connection refused")},
			message: "Failed to download GTFS data: connection refused",
		},
		{
			name:    "StillEmpty",
			fetcher: &fakeFetcher{files: map[string]string{"agency.txt": validFeedFiles["agency.txt"]}},
			message: "Still no GTFS data found after update attempt",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			tc.fetcher.dir = dir

			result := NewValidator(dir, bilbaoBounds, tc.fetcher, nil, nil).Validate(context.Background())

			assert.Equal(t, 1, tc.fetcher.calls)
			assert.False(t, result.Passed)
			assert.False(t, result.Recovered)
			require.Len(t, result.Errors, 1)
			assert.Equal(t, tc.message, result.Errors[0].Message)
			assert.Equal(t, KindIO, result.Errors[0].Kind)
		})
	}
}

func TestValidate_NoDataNoFetcher(t *testing.T) {
	result := NewValidator(t.TempDir(), bilbaoBounds, nil, nil, nil).Validate(context.Background())

	assert.False(t, result.Passed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, KindIO, result.Errors[0].Kind)
}
