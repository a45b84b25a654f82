package service

import "time"

// ScheduleParams is one schedule slot as submitted by a client.
// Day 0 is accepted as Sunday.
type ScheduleParams struct {
	Index  int
	Active bool
	Day    int
	Hour   int
	Minute int
	Power  int
}

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From  time.Time // inclusive; zero means no lower bound
	To    time.Time // inclusive; zero means no upper bound
	Type  string    // "", "START", "SHUTDOWN", "STATE_CHANGE", ...
	Limit int       // <= 0 means no limit
}

// ProbeResult is a raw memory read.
type ProbeResult struct {
	Kind     string `json:"kind"`
	Address  string `json:"address"`
	Bytes    []byte `json:"bytes"`
	Value    *int   `json:"value,omitempty"`
	Rendered string `json:"rendered"`
}
