package exercise

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }
func strPtr(s string) *string     { return &s }

type statsRepoFake struct {
	records  []Record
	listAlls int
}

func (r *statsRepoFake) ListAll(_ context.Context, userID string) ([]Record, error) {
	r.listAlls++
	if userID == "" {
		return r.records, nil
	}
	var filtered []Record
	for _, rec := range r.records {
		if rec.UserID == userID {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}

func recordWithBand(userID string, ts time.Time, heartRate int, pace float64, calories int) Record {
	return Record{
		ID:     "rec-" + ts.Format("20060102"),
		UserID: userID,
		BandData: &BandData{
			HeartRate: intPtr(heartRate),
			Pace:      floatPtr(pace),
			Calories:  intPtr(calories),
		},
		Timestamp: ts,
	}
}

func TestAnalyzer_Statistics_NoRecords(t *testing.T) {
	analyzer := NewAnalyzer(&statsRepoFake{})

	stats, err := analyzer.Statistics(context.Background(), "user001")
	require.NoError(t, err)

	assert.Equal(t, MetricStats{Data: []float64{}}, stats.HeartRate)
	assert.Equal(t, MetricStats{Data: []float64{}}, stats.Pace)
	assert.Equal(t, MetricStats{Data: []float64{}}, stats.Calories)
	assert.Empty(t, stats.Dates)
}

func TestAnalyzer_Statistics(t *testing.T) {
	day1 := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	repo := &statsRepoFake{records: []Record{
		recordWithBand("user001", day1, 100, 6.5, 300),
		recordWithBand("user001", day2, 200, 5.5, 500),
	}}
	analyzer := NewAnalyzer(repo)

	stats, err := analyzer.Statistics(context.Background(), "user001")
	require.NoError(t, err)

	assert.Equal(t, 150.0, stats.HeartRate.Avg)
	assert.Equal(t, 200.0, stats.HeartRate.Max)
	assert.Equal(t, 100.0, stats.HeartRate.Min)
	assert.Equal(t, []float64{100, 200}, stats.HeartRate.Data)

	assert.Equal(t, 6.0, stats.Pace.Avg)
	assert.Equal(t, 400.0, stats.Calories.Avg)
	assert.Equal(t, []string{"2025-03-01", "2025-03-02"}, stats.Dates)
}

func TestAnalyzer_Statistics_DatesFollowHeartRateSeries(t *testing.T) {
	day1 := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	repo := &statsRepoFake{records: []Record{
		recordWithBand("user001", day1, 100, 6.5, 300),
		// second record has no heart rate reading
		{
			ID:        "rec-2",
			UserID:    "user001",
			BandData:  &BandData{Pace: floatPtr(5.5)},
			Timestamp: day1.Add(24 * time.Hour),
		},
	}}
	analyzer := NewAnalyzer(repo)

	stats, err := analyzer.Statistics(context.Background(), "user001")
	require.NoError(t, err)

	assert.Len(t, stats.HeartRate.Data, 1)
	assert.Equal(t, []string{"2025-03-01"}, stats.Dates)
}

func TestAnalyzer_Statistics_CacheHit(t *testing.T) {
	day1 := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	repo := &statsRepoFake{records: []Record{
		recordWithBand("user001", day1, 100, 6.5, 300),
	}}
	analyzer := NewAnalyzer(repo)

	_, err := analyzer.Statistics(context.Background(), "user001")
	require.NoError(t, err)
	_, err = analyzer.Statistics(context.Background(), "user001")
	require.NoError(t, err)

	assert.Equal(t, 1, repo.listAlls)
}

func TestCalcMetricStats_AvgRounding(t *testing.T) {
	stats := calcMetricStats([]float64{1, 2, 2})
	assert.Equal(t, 1.67, stats.Avg)
}
