package scanner

import "time"

// State is a scheduler lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateScoring
	StateReporting
	StateSleeping
	StateReconnecting
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateFetching:     "fetching",
	StateScoring:      "scoring",
	StateReporting:    "reporting",
	StateSleeping:     "sleeping",
	StateReconnecting: "reconnecting",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func allStateNames() []string {
	return stateNames[:]
}

// Status is a point-in-time view of the scheduler for the API.
type Status struct {
	State               string    `json:"state"`
	VenueA              string    `json:"venue_a"`
	VenueB              string    `json:"venue_b"`
	Cycles              int64     `json:"cycles"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastCycleStart      time.Time `json:"last_cycle_start,omitzero"`
	LastCycleEnd        time.Time `json:"last_cycle_end,omitzero"`
	LastBucketKey       string    `json:"last_bucket_key,omitempty"`
	Universe            int       `json:"universe"`
	LastSnapshots       int       `json:"last_snapshots"`
	LastOpportunities   int       `json:"last_opportunities"`
	LastError           string    `json:"last_error,omitempty"`
	LastErrorAt         time.Time `json:"last_error_at,omitzero"`
}
