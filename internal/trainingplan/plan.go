package trainingplan

import "time"

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// PlanData is the structure the language model is asked to return. The
// model does not always comply, so it stays schemaless.
type PlanData map[string]any

func (pd PlanData) Title() string {
	if title, ok := pd["title"].(string); ok {
		return title
	}
	return "训练计划"
}

func (pd PlanData) Duration() int {
	switch d := pd["duration"].(type) {
	case float64:
		return int(d)
	case int:
		return d
	}
	return 0
}

// HistorySummary captures the aggregated exercise data a plan was
// generated from.
type HistorySummary struct {
	AvgHeartRate   float64 `json:"avg_heart_rate"`
	AvgPace        float64 `json:"avg_pace"`
	TotalExercises int     `json:"total_exercises"`
}

type Plan struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	PlanType       string         `json:"plan_type"`
	Goal           string         `json:"goal"`
	PlanData       PlanData       `json:"plan_data"`
	HistorySummary HistorySummary `json:"history_data_summary"`
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}

// PlanListItem is the summary row returned by the list endpoint.
type PlanListItem struct {
	ID        string    `json:"id"`
	PlanType  string    `json:"plan_type"`
	Goal      string    `json:"goal"`
	Title     string    `json:"title"`
	Duration  int       `json:"duration"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
