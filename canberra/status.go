package canberra

import "strconv"

// Status is the analyzer state reported by DeviceAccess
type Status int

const (
	// StatusIdle is an analyzer that is not acquiring and has no pending count
	StatusIdle Status = 2080

	// StatusCounting is an analyzer acquiring data
	StatusCounting Status = 2084

	// StatusPaused is an analyzer whose count was paused before the preset
	StatusPaused Status = 2092

	// StatusFinished is an analyzer which reached its preset
	StatusFinished Status = 2224
)

var statusNames = map[Status]string{
	StatusIdle:     "idle",
	StatusCounting: "counting",
	StatusPaused:   "paused",
	StatusFinished: "finished",
}

// String returns the name of the state, or unknown(N)
func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}
