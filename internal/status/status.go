package status

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Status is the connectivity indicator shown by the host next to the instance.
type Status int

const (
	Ok Status = iota
	Connecting
	Disconnected
	ConnectionFailure
	BadConfig
	UnknownError
	UnknownWarning
)

var names = [...]string{
	Ok:                "ok",
	Connecting:        "connecting",
	Disconnected:      "disconnected",
	ConnectionFailure: "connection_failure",
	BadConfig:         "bad_config",
	UnknownError:      "unknown_error",
	UnknownWarning:    "unknown_warning",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(names) {
		return "unknown"
	}
	return names[s]
}

func (s Status) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// UnmarshalJSON accepts the names written by MarshalJSON.
func (s *Status) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	for i, n := range names {
		if n == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("decode status: unknown status %q", name)
}

// Sink receives status updates. Implementations must be safe for concurrent use.
type Sink interface {
	UpdateStatus(s Status, message string)
}

// Discard drops every update.
var Discard Sink = discard{}

type discard struct{}

func (discard) UpdateStatus(Status, string) {}

// Recorder is a Sink that remembers the last update; handy where no host is attached (CLI one-shots, tests).
type Recorder struct {
	mu      sync.Mutex
	last    Status
	message string
	count   int
}

func (r *Recorder) UpdateStatus(s Status, message string) {
	r.mu.Lock()
	r.last, r.message = s, message
	r.count++
	r.mu.Unlock()
}

// Last returns the most recent status and message.
func (r *Recorder) Last() (Status, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.message
}

// Count returns how many updates were received.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
