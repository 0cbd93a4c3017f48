package trainingplan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitrack-app/fitrack-backend/internal/exercise"
	"github.com/fitrack-app/fitrack-backend/internal/users"
)

type exerciseSource interface {
	ListAll(ctx context.Context, userID string) ([]exercise.Record, error)
}

type userSource interface {
	Get(ctx context.Context, id string) (*users.User, error)
}

// HistoryData aggregates a user's recent exercise records into the numbers
// the coaching prompt is built from.
type HistoryData struct {
	Gender         string
	Age            *int
	Height         *float64
	Weight         *float64
	BodyFat        *float64
	HeartRates     []float64
	Paces          []float64
	Calories       []float64
	Distances      []float64
	Durations      []float64
	TotalExercises int
	Days           int
}

func (hd HistoryData) AvgHeartRate() float64 { return avg(hd.HeartRates) }
func (hd HistoryData) AvgPace() float64      { return avg(hd.Paces) }
func (hd HistoryData) AvgCalories() float64  { return avg(hd.Calories) }

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// collectHistory pulls the user's exercise records from the last `days`
// days plus their profile basics.
func collectHistory(
	ctx context.Context,
	exercises exerciseSource,
	userRepo userSource,
	userID string,
	days int,
) (*HistoryData, error) {
	records, err := exercises.ListAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list exercise records: %w", err)
	}

	startDate := time.Now().AddDate(0, 0, -days)
	history := &HistoryData{Days: days}
	var lastBasicInfo *exercise.BasicInfo
	for _, rec := range records {
		if rec.Timestamp.Before(startDate) {
			continue
		}
		history.TotalExercises++

		if rec.BasicInfo != nil {
			lastBasicInfo = rec.BasicInfo
		}
		if rec.BandData != nil {
			if rec.BandData.HeartRate != nil && *rec.BandData.HeartRate != 0 {
				history.HeartRates = append(history.HeartRates, float64(*rec.BandData.HeartRate))
			}
			if rec.BandData.Pace != nil && *rec.BandData.Pace != 0 {
				history.Paces = append(history.Paces, *rec.BandData.Pace)
			}
			if rec.BandData.Calories != nil && *rec.BandData.Calories != 0 {
				history.Calories = append(history.Calories, float64(*rec.BandData.Calories))
			}
		}
		if rec.TreadmillData != nil {
			if rec.TreadmillData.Distance != nil && *rec.TreadmillData.Distance != 0 {
				history.Distances = append(history.Distances, *rec.TreadmillData.Distance)
			}
			if rec.TreadmillData.Duration != nil && *rec.TreadmillData.Duration != 0 {
				history.Durations = append(history.Durations, float64(*rec.TreadmillData.Duration))
			}
		}
	}

	if lastBasicInfo != nil {
		history.Age = lastBasicInfo.Age
		history.Height = lastBasicInfo.Height
		history.Weight = lastBasicInfo.Weight
		history.BodyFat = lastBasicInfo.BodyFat
	}

	user, err := userRepo.Get(ctx, userID)
	if err != nil && !errors.Is(err, users.ErrUserNotFound) {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user != nil {
		history.Gender = user.Gender
	}

	return history, nil
}
