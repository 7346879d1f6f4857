package service

import (
	"slices"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
)

// structuralChange reports whether choices and definitions built from prev are stale for next:
// entity ids, display names, per-channel layout and publisher listings, or event listings differ.
// A nil prev always counts as a change.
func structuralChange(prev, next *state.Snapshot) bool {
	if prev == nil {
		return true
	}
	if !slices.Equal(prev.Channels.IDs(), next.Channels.IDs()) ||
		!slices.Equal(prev.Recorders.IDs(), next.Recorders.IDs()) {
		return true
	}
	for _, id := range next.Channels.IDs() {
		a, _ := prev.Channels.Get(id)
		b, _ := next.Channels.Get(id)
		if a.Name != b.Name ||
			!slices.Equal(layoutNames(a), layoutNames(b)) ||
			!slices.Equal(publisherNames(a), publisherNames(b)) {
			return true
		}
	}
	for _, id := range next.Recorders.IDs() {
		a, _ := prev.Recorders.Get(id)
		b, _ := next.Recorders.Get(id)
		if a.Name != b.Name {
			return true
		}
	}
	return !slices.Equal(eventNames(prev), eventNames(next))
}

// dirtyFeedbacks compares status fields of two structurally equal snapshots and returns the
// feedback kinds whose inputs changed. Durations and statistics are not compared.
func dirtyFeedbacks(prev, next *state.Snapshot) []FeedbackKind {
	var layouts, publishers, recorders, events, afu bool

	for _, id := range next.Channels.IDs() {
		a, _ := prev.Channels.Get(id)
		b, _ := next.Channels.Get(id)
		if !slices.Equal(activeFlags(a), activeFlags(b)) {
			layouts = true
		}
		if !slices.Equal(publisherStates(a), publisherStates(b)) {
			publishers = true
		}
	}
	for _, id := range next.Recorders.IDs() {
		a, _ := prev.Recorders.Get(id)
		b, _ := next.Recorders.Get(id)
		if a.Status.State != b.Status.State {
			recorders = true
		}
	}
	events = !slices.Equal(eventStates(prev), eventStates(next))
	afu = !slices.Equal(afuStates(prev), afuStates(next))

	var out []FeedbackKind
	if layouts {
		out = append(out, FeedbackChannelLayout)
	}
	if publishers {
		out = append(out, FeedbackStreamingState, FeedbackChannelStreaming)
	}
	if recorders {
		out = append(out, FeedbackRecorderRecording)
	}
	if events {
		out = append(out, FeedbackEventState)
	}
	if afu {
		out = append(out, FeedbackAFURunning)
	}
	return out
}

func layoutNames(ch *state.Channel) []string {
	out := make([]string, 0, ch.Layouts.Len())
	ch.Layouts.Each(func(id state.ID, l *state.Layout) { out = append(out, string(id)+"="+l.Name) })
	return out
}

func publisherNames(ch *state.Channel) []string {
	out := make([]string, 0, ch.Publishers.Len())
	ch.Publishers.Each(func(id state.ID, p *state.Publisher) { out = append(out, string(id)+"="+p.Name) })
	return out
}

func activeFlags(ch *state.Channel) []bool {
	out := make([]bool, 0, ch.Layouts.Len())
	for _, l := range ch.Layouts.Values() {
		out = append(out, l.Active)
	}
	return out
}

func publisherStates(ch *state.Channel) []string {
	out := make([]string, 0, ch.Publishers.Len())
	for _, p := range ch.Publishers.Values() {
		out = append(out, p.Status.State)
	}
	return out
}

func eventNames(s *state.Snapshot) []string {
	if s.Events == nil {
		return nil
	}
	var out []string
	s.Events.Each(func(id state.ID, e *state.Event) { out = append(out, string(id)+"="+e.Name) })
	return out
}

func eventStates(s *state.Snapshot) []string {
	if s.Events == nil {
		return nil
	}
	var out []string
	for _, e := range s.Events.Values() {
		out = append(out, e.Status.State)
	}
	return out
}

func afuStates(s *state.Snapshot) []string {
	if s.System == nil {
		return nil
	}
	var out []string
	for _, a := range s.System.AFU {
		out = append(out, string(a.ID)+"="+a.Status.State)
	}
	return out
}
