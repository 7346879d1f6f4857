package state

import "time"

// NewSnapshot returns an empty snapshot stamped with at.
func NewSnapshot(at time.Time) *Snapshot {
	return &Snapshot{GeneratedAt: at}
}

// Channel returns the channel with the given id. Safe on a nil snapshot.
func (s *Snapshot) Channel(id ID) (*Channel, bool) {
	if s == nil {
		return nil, false
	}
	return s.Channels.Get(id)
}

// Recorder returns the recorder with the given id. Safe on a nil snapshot.
func (s *Snapshot) Recorder(id ID) (*Recorder, bool) {
	if s == nil {
		return nil, false
	}
	return s.Recorders.Get(id)
}

// Event returns the event with the given id. Safe on a nil snapshot.
func (s *Snapshot) Event(id ID) (*Event, bool) {
	if s == nil || s.Events == nil {
		return nil, false
	}
	return s.Events.Get(id)
}

// Clone returns a copy whose channels, layouts, publishers, recorders and events can be
// modified without affecting s. SystemInfo and Metadata values are shared; they are
// replaced, never mutated.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		System:      s.System,
		GeneratedAt: s.GeneratedAt,
	}
	out.Channels = s.Channels.Map(func(ch *Channel) *Channel {
		c := *ch
		c.Layouts = ch.Layouts.Map(func(l *Layout) *Layout { v := *l; return &v })
		c.Publishers = ch.Publishers.Map(func(p *Publisher) *Publisher { v := *p; return &v })
		if ch.Encoders != nil {
			c.Encoders = append([]Encoder(nil), ch.Encoders...)
		}
		return &c
	})
	out.Recorders = s.Recorders.Map(func(r *Recorder) *Recorder { v := *r; return &v })
	if s.Events != nil {
		evs := s.Events.Map(func(e *Event) *Event { v := *e; return &v })
		out.Events = &evs
	}
	return out
}

// Counts returns entity totals, keyed by kind, for metrics and logs.
func (s *Snapshot) Counts() map[string]int {
	out := map[string]int{"channels": 0, "layouts": 0, "publishers": 0, "recorders": 0, "events": 0}
	if s == nil {
		return out
	}
	out["channels"] = s.Channels.Len()
	out["recorders"] = s.Recorders.Len()
	for _, ch := range s.Channels.Values() {
		out["layouts"] += ch.Layouts.Len()
		out["publishers"] += ch.Publishers.Len()
	}
	if s.Events != nil {
		out["events"] = s.Events.Len()
	}
	return out
}
