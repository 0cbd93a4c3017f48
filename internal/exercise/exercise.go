package exercise

import "time"

// DefaultUserID is used when a record comes in without an owner, matching
// the mobile client's anonymous mode.
const DefaultUserID = "user001"

type BasicInfo struct {
	Gender       *string  `json:"gender,omitempty"`
	Age          *int     `json:"age,omitempty"`
	Height       *float64 `json:"height,omitempty"`
	Weight       *float64 `json:"weight,omitempty"`
	BodyFat      *float64 `json:"bodyFat,omitempty"`
	MuscleMass   *float64 `json:"muscleMass,omitempty"`
	WaterContent *float64 `json:"waterContent,omitempty"`
}

type SleepData struct {
	Duration   *float64 `json:"duration,omitempty"`
	DeepSleep  *float64 `json:"deepSleep,omitempty"`
	LightSleep *float64 `json:"lightSleep,omitempty"`
	RemSleep   *float64 `json:"remSleep,omitempty"`
}

type BandData struct {
	HeartRate    *int       `json:"heartRate,omitempty"`
	Pace         *float64   `json:"pace,omitempty"`
	TrainingLoad *int       `json:"trainingLoad,omitempty"`
	Calories     *int       `json:"calories,omitempty"`
	Sleep        *SleepData `json:"sleep,omitempty"`
}

type TreadmillData struct {
	Speed    *float64 `json:"speed,omitempty"`
	Incline  *float64 `json:"incline,omitempty"`
	Duration *int     `json:"duration,omitempty"`
	Distance *float64 `json:"distance,omitempty"`
}

// Record is one exercise data point as submitted by the client, band and
// treadmill readings kept as optional sub-records.
type Record struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	BasicInfo     *BasicInfo     `json:"basicInfo,omitempty"`
	BandData      *BandData      `json:"bandData,omitempty"`
	TreadmillData *TreadmillData `json:"treadmillData,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}
