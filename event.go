package actionpipe

import (
	"encoding"
	"encoding/json"
)

// Event is a single pipeline result that can be spooled to disk and later
// published to a SQL sink. The binary form must round-trip through the spool;
// SQL and ToExec describe the insert used by the sender.
type Event interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler

	SQL() string
	ToExec() []interface{}
}

// TrackEvent records one tracked person box on one frame.
type TrackEvent struct {
	RunID    string  `json:"run_id"`
	Millis   int64   `json:"millis"`
	FrameIdx int     `json:"frame_idx"`
	TrackID  int     `json:"track_id"`
	Class    string  `json:"class"`
	Box      Box     `json:"box"`
	Score    float64 `json:"score"`
}

func (e *TrackEvent) MarshalBinary() ([]byte, error) {
	return json.Marshal(e)
}

func (e *TrackEvent) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, e)
}

func (e *TrackEvent) SQL() string {
	return "INSERT INTO track_events " +
		"(run_id, millis, frame_idx, track_id, class, box_left, box_top, box_right, box_bottom, score) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
}

func (e *TrackEvent) ToExec() []interface{} {
	return []interface{}{
		e.RunID,
		e.Millis,
		e.FrameIdx,
		e.TrackID,
		e.Class,
		e.Box.Left,
		e.Box.Top,
		e.Box.Right,
		e.Box.Bottom,
		e.Score,
	}
}

// ActionEvent records one scored action for one person at one prediction
// timestamp.
type ActionEvent struct {
	RunID     string  `json:"run_id"`
	Timestamp int     `json:"timestamp"`
	Millis    int64   `json:"millis"`
	TrackID   int     `json:"track_id"`
	Box       Box     `json:"box"`
	ActionID  int     `json:"action_id"`
	Action    string  `json:"action"`
	Score     float64 `json:"score"`
}

func (e *ActionEvent) MarshalBinary() ([]byte, error) {
	return json.Marshal(e)
}

func (e *ActionEvent) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, e)
}

func (e *ActionEvent) SQL() string {
	return "INSERT INTO action_events " +
		"(run_id, timestamp, millis, track_id, box_left, box_top, box_right, box_bottom, action_id, action, score) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
}

func (e *ActionEvent) ToExec() []interface{} {
	return []interface{}{
		e.RunID,
		e.Timestamp,
		e.Millis,
		e.TrackID,
		e.Box.Left,
		e.Box.Top,
		e.Box.Right,
		e.Box.Bottom,
		e.ActionID,
		e.Action,
		e.Score,
	}
}
