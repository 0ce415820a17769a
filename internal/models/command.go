package models

import "time"

// FeedPayload is the literal payload the feeder firmware reacts to
const FeedPayload = "FEED"

// Command is a generic actuator command published as JSON
type Command struct {
	Command   string    `json:"command"`
	Value     any       `json:"value,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Feed sources
const (
	FeedSourceManual   = "manual"
	FeedSourceSchedule = "schedule"
)

// FeedEvent is one feed attempt. Error is empty when the command was sent;
// Unacknowledged marks a sent command the broker never confirmed.
type FeedEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	Source         string    `json:"source"`
	ScheduleID     string    `json:"schedule_id,omitempty"`
	Unacknowledged bool      `json:"unacknowledged,omitempty"`
	Error          string    `json:"error,omitempty"`
}
