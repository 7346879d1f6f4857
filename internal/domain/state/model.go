package state

import "time"

// Well-known state values reported by the device.
const (
	StateStarted = "started"
	StateStopped = "stopped"
	StatePaused  = "paused"
)

// Snapshot is one fully merged, point-in-time view of the device.
// Once handed to Store.Swap it must not be mutated; use Store.Update for copy-on-write changes.
type Snapshot struct {
	Channels  Ordered[*Channel]  `json:"channels"`
	Recorders Ordered[*Recorder] `json:"recorders"`
	Events    *Ordered[*Event]   `json:"events,omitempty"` // nil unless the versioned API is active
	System    *SystemInfo        `json:"system,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

type Channel struct {
	ID         ID                  `json:"id"`
	Name       string              `json:"name"`
	Layouts    Ordered[*Layout]    `json:"layouts"`
	Publishers Ordered[*Publisher] `json:"publishers"`
	Encoders   []Encoder           `json:"encoders,omitempty"`
	Metadata   *Metadata           `json:"metadata,omitempty"` // legacy CGI, only when enabled
}

// ActiveLayout returns the layout the device reports as active, if any.
// When a transient device state reports more than one, the first in device order wins.
func (ch *Channel) ActiveLayout() (*Layout, bool) {
	for _, l := range ch.Layouts.Values() {
		if l.Active {
			return l, true
		}
	}
	return nil, false
}

// VideoEncoder returns the first encoder of type "video".
func (ch *Channel) VideoEncoder() (*Encoder, bool) {
	for i := range ch.Encoders {
		if ch.Encoders[i].Type == "video" {
			return &ch.Encoders[i], true
		}
	}
	return nil, false
}

type Layout struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Publisher is an outbound stream of a channel.
type Publisher struct {
	ID     ID              `json:"id"`
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Status PublisherStatus `json:"status"`
}

type PublisherStatus struct {
	State      string            `json:"state"`
	Duration   int64             `json:"duration"`
	Statistics *StreamStatistics `json:"statistics,omitempty"`
}

type StreamStatistics struct {
	Current *struct {
		SendRate *float64 `json:"send_rate,omitempty"`
	} `json:"current,omitempty"`
}

// SendRate returns the current send rate when the device reported one.
func (s *PublisherStatus) SendRate() (float64, bool) {
	if s.Statistics == nil || s.Statistics.Current == nil || s.Statistics.Current.SendRate == nil {
		return 0, false
	}
	return *s.Statistics.Current.SendRate, true
}

type Encoder struct {
	ID         ID             `json:"id"`
	Type       string         `json:"type"`
	Resolution Scalar         `json:"resolution,omitempty"`
	Framerate  Scalar         `json:"framerate,omitempty"`
	Bitrate    Scalar         `json:"bitrate,omitempty"`
	Status     *EncoderStatus `json:"status,omitempty"`
}

type EncoderStatus struct {
	Resolution Scalar `json:"resolution,omitempty"`
	Framerate  Scalar `json:"framerate,omitempty"`
	Bitrate    Scalar `json:"bitrate,omitempty"`
}

type Recorder struct {
	ID     ID             `json:"id"`
	Name   string         `json:"name"`
	Status RecorderStatus `json:"status"`
}

type RecorderStatus struct {
	State    string `json:"state"`
	Duration int64  `json:"duration"`
	Active   Scalar `json:"active,omitempty"`
}

// Event is a scheduled production event (versioned API only).
type Event struct {
	ID     ID          `json:"id"`
	Name   string      `json:"name"`
	Status EventStatus `json:"status"`
}

type EventStatus struct {
	State string `json:"state"`
}

// SystemInfo aggregates the best-effort system endpoints. Each part may be nil.
type SystemInfo struct {
	Status   *SystemStatus `json:"status,omitempty"`
	Firmware *Firmware     `json:"firmware,omitempty"`
	Product  *Product      `json:"product,omitempty"`
	Identity *Identity     `json:"identity,omitempty"`
	AFU      []AFU         `json:"afu,omitempty"`
}

type SystemStatus struct {
	Date    Scalar `json:"date"`
	Uptime  Scalar `json:"uptime"`
	CPULoad Scalar `json:"cpuload"`
	CPUTemp Scalar `json:"cputemp"`
}

type Firmware struct {
	Version     string `json:"version"`
	ProductName string `json:"product_name"`
}

type Product struct {
	Name string `json:"name"`
}

type Identity struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// AFU is one auto framing unit.
type AFU struct {
	ID     ID `json:"id"`
	Status struct {
		State string `json:"state"`
	} `json:"status"`
}

// Metadata is the per-channel content metadata served by the legacy CGI API.
type Metadata struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Copyright   string `json:"copyright"`
	Comment     string `json:"comment"`
	Description string `json:"description"`
	RecPrefix   string `json:"rec_prefix"`
}

// MetadataKeys lists the CGI parameter names in the order the device documents them.
var MetadataKeys = []string{"title", "author", "copyright", "comment", "description", "rec_prefix"}

// MetadataFromParams maps CGI key/value pairs onto Metadata; unknown keys are ignored.
func MetadataFromParams(p map[string]string) *Metadata {
	return &Metadata{
		Title:       p["title"],
		Author:      p["author"],
		Copyright:   p["copyright"],
		Comment:     p["comment"],
		Description: p["description"],
		RecPrefix:   p["rec_prefix"],
	}
}

// Params returns the non-empty fields as CGI key/value pairs.
func (m *Metadata) Params() map[string]string {
	out := make(map[string]string)
	for k, v := range map[string]string{
		"title":       m.Title,
		"author":      m.Author,
		"copyright":   m.Copyright,
		"comment":     m.Comment,
		"description": m.Description,
		"rec_prefix":  m.RecPrefix,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
