package models

// Period selects the time window of a historical series. Each period is an
// independent cache entry for the same subject.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// SeriesPoint is one sample of a historical series.
type SeriesPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// DoorSample is one entry of the door history endpoint, used at startup to
// report door activity that happened while the dashboard was away.
type DoorSample struct {
	Timestamp int64
	State     DoorState
}
