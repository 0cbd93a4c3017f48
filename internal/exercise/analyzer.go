package exercise

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"

	"github.com/fitrack-app/fitrack-backend/internal/telemetry/tracing"
)

const (
	statsCacheSize      = 512 * 1024
	statsCacheExpireSec = 60
)

type MetricStats struct {
	Avg  float64   `json:"avg"`
	Max  float64   `json:"max"`
	Min  float64   `json:"min"`
	Data []float64 `json:"data"`
}

type Statistics struct {
	HeartRate MetricStats `json:"heartRate"`
	Pace      MetricStats `json:"pace"`
	Calories  MetricStats `json:"calories"`
	Dates     []string    `json:"dates"`
}

type statsRepo interface {
	ListAll(ctx context.Context, userID string) ([]Record, error)
}

// Analyzer computes aggregate statistics over exercise records. Results are
// cached briefly since the mobile dashboard polls this endpoint.
type Analyzer struct {
	repo  statsRepo
	cache *freecache.Cache
}

func NewAnalyzer(repo statsRepo) *Analyzer {
	return &Analyzer{
		repo:  repo,
		cache: freecache.NewCache(statsCacheSize),
	}
}

func (a *Analyzer) Statistics(ctx context.Context, userID string) (_ *Statistics, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.exercise.statistics")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	cacheKey := fmt.Sprintf("stats::%s", userID)
	if statsBytes, err := a.cache.Get([]byte(cacheKey)); err == nil {
		log.Tracef("found statistics for [%s] in cache", userID)
		stats := &Statistics{}
		if err = json.Unmarshal(statsBytes, stats); err == nil {
			return stats, nil
		}
		log.Errorf("failed to unmarshal cached statistics: %s", err)
	}

	records, err := a.repo.ListAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	stats := calculateStatistics(records)

	if statsBytes, err := json.Marshal(stats); err != nil {
		log.Errorf("failed to marshal statistics for cache: %s", err)
	} else if err := a.cache.Set([]byte(cacheKey), statsBytes, statsCacheExpireSec); err != nil {
		log.Errorf("failed to write statistics cache for [%s]: %s", userID, err)
	}

	return stats, nil
}

func calculateStatistics(records []Record) *Statistics {
	if len(records) == 0 {
		return &Statistics{
			HeartRate: emptyMetricStats(),
			Pace:      emptyMetricStats(),
			Calories:  emptyMetricStats(),
			Dates:     []string{},
		}
	}

	var (
		heartRates []float64
		paces      []float64
		calories   []float64
		dates      []string
	)
	for _, rec := range records {
		dates = append(dates, rec.Timestamp.Format("2006-01-02"))

		if rec.BandData == nil {
			continue
		}
		if rec.BandData.HeartRate != nil && *rec.BandData.HeartRate != 0 {
			heartRates = append(heartRates, float64(*rec.BandData.HeartRate))
		}
		if rec.BandData.Pace != nil && *rec.BandData.Pace != 0 {
			paces = append(paces, *rec.BandData.Pace)
		}
		if rec.BandData.Calories != nil && *rec.BandData.Calories != 0 {
			calories = append(calories, float64(*rec.BandData.Calories))
		}
	}

	// the dates series is cut to the heart rate series length, the way the
	// mobile dashboard has always consumed it
	if len(heartRates) > 0 && len(dates) > len(heartRates) {
		dates = dates[:len(heartRates)]
	}

	return &Statistics{
		HeartRate: calcMetricStats(heartRates),
		Pace:      calcMetricStats(paces),
		Calories:  calcMetricStats(calories),
		Dates:     dates,
	}
}

func emptyMetricStats() MetricStats {
	return MetricStats{Data: []float64{}}
}

func calcMetricStats(values []float64) MetricStats {
	if len(values) == 0 {
		return emptyMetricStats()
	}

	sum := 0.0
	maxVal := values[0]
	minVal := values[0]
	for _, v := range values {
		sum += v
		if v > maxVal {
			maxVal = v
		}
		if v < minVal {
			minVal = v
		}
	}

	return MetricStats{
		Avg:  math.Round(sum/float64(len(values))*100) / 100,
		Max:  maxVal,
		Min:  minVal,
		Data: values,
	}
}
