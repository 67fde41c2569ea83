package actionpipe

// ActionScore is one scored action class for a person.
type ActionScore struct {
	ActionID int     `json:"action_id"`
	Action   string  `json:"action"`
	Score    float64 `json:"score"`
}

// PersonActions carries the scores of one tracked person at a prediction
// timestamp. Scores are sorted by descending score.
type PersonActions struct {
	TrackID int           `json:"track_id"`
	Box     Box           `json:"box"`
	Scores  []ActionScore `json:"scores"`
}

// Prediction is the action detection result of one interval tick.
type Prediction struct {
	Timestamp int             `json:"timestamp"`
	Millis    int64           `json:"millis"`
	Persons   []PersonActions `json:"persons"`
}
