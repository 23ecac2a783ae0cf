package events

import "time"

// QueryStart is emitted before an observer query executes.
type QueryStart struct {
	Observer string
	Query    string
}

// QueryFinish is emitted after an observer query executes.
type QueryFinish struct {
	Observer  string
	Query     string
	NeedsData bool
	Errors    []error
	Duration  time.Duration
}

// ObserveStart is emitted before a plugin fetches data.
type ObserveStart struct {
	Observer string
	Queries  int
	Attempt  int
}

// ObserveFinish is emitted after a plugin fetch attempt.
type ObserveFinish struct {
	Observer string
	Queries  int
	Attempt  int
	Err      error
	Duration time.Duration
}
