package events

import "time"

// RequestStart is published when an observer endpoint receives a request.
type RequestStart struct {
	Observer string
	Method   string
	Target   string
}

// RequestFinish is published after the response is written. NeedsData is set
// when any operation in the request hit missing observations.
type RequestFinish struct {
	Observer  string
	Status    int
	NeedsData bool
	Duration  time.Duration
}
