package export

import (
	"fmt"
	"strconv"

	"github.com/fitrack-app/fitrack-backend/internal/exercise"
)

// ExerciseHeaders is the column order of the tabular exports, as the mobile
// app's reporting screens expect it.
var ExerciseHeaders = []string{
	"日期",
	"用户ID",
	"心率(bpm)",
	"配速(min/km)",
	"卡路里(kcal)",
	"速度(km/h)",
	"距离(km)",
	"时长(分钟)",
	"身高(cm)",
	"体重(kg)",
	"体脂率(%)",
}

// ExerciseRows renders records into table rows keyed by ExerciseHeaders,
// newest first.
func ExerciseRows(records []exercise.Record) []map[string]string {
	rows := make([]map[string]string, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]

		row := map[string]string{
			"日期":   rec.Timestamp.Format("2006-01-02 15:04:05"),
			"用户ID": rec.UserID,
		}
		if rec.BandData != nil {
			row["心率(bpm)"] = intOrEmpty(rec.BandData.HeartRate)
			row["配速(min/km)"] = floatOrEmpty(rec.BandData.Pace)
			row["卡路里(kcal)"] = intOrEmpty(rec.BandData.Calories)
		}
		if rec.TreadmillData != nil {
			row["速度(km/h)"] = floatOrEmpty(rec.TreadmillData.Speed)
			row["距离(km)"] = floatOrEmpty(rec.TreadmillData.Distance)
			row["时长(分钟)"] = intOrEmpty(rec.TreadmillData.Duration)
		}
		if rec.BasicInfo != nil {
			row["身高(cm)"] = floatOrEmpty(rec.BasicInfo.Height)
			row["体重(kg)"] = floatOrEmpty(rec.BasicInfo.Weight)
			row["体脂率(%)"] = floatOrEmpty(rec.BasicInfo.BodyFat)
		}

		rows = append(rows, row)
	}
	return rows
}

func intOrEmpty(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

func floatOrEmpty(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%g", *f)
}
