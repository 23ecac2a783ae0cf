package events

import "time"

// PassStart is emitted when a build pass begins.
type PassStart struct {
	Pass int
}

// PassFinish is emitted when a build pass ends. NeedsData names the observers
// that still lacked data at the end of the pass.
type PassFinish struct {
	Pass      int
	NeedsData []string
	Err       error
	Duration  time.Duration
}
