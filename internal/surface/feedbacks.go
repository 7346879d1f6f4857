package surface

import (
	"encoding/json"
	"fmt"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
	"github.com/edirooss/pearl-bridge/internal/service"
)

type layoutFeedback struct {
	ChannelLayout string `json:"channelIdlayoutId"`
}

type streamingFeedback struct {
	ChannelPublisher string `json:"channelIdpublisherId"`
}

type recorderFeedback struct {
	Recorder string `json:"recorderId"`
}

type eventFeedback struct {
	Event string `json:"eventId"`
	State string `json:"state" default:"started"`
}

type afuFeedback struct {
	AFU string `json:"afuId"`
}

// EvaluateFeedback answers a boolean feedback against snap. References to entities that do
// not exist evaluate to false; only undecodable options are an error.
func EvaluateFeedback(snap *state.Snapshot, kind service.FeedbackKind, raw json.RawMessage) (bool, error) {
	switch kind {
	case service.FeedbackChannelLayout:
		var o layoutFeedback
		if err := decodeRaw(raw, &o); err != nil {
			return false, err
		}
		return layoutActive(snap, o.ChannelLayout), nil

	case service.FeedbackStreamingState, service.FeedbackChannelStreaming:
		var o streamingFeedback
		if err := decodeRaw(raw, &o); err != nil {
			return false, err
		}
		ch, pub, ok := splitComposite(o.ChannelPublisher)
		if !ok {
			return false, nil
		}
		channel, ok := snap.Channel(ch)
		if !ok {
			return false, nil
		}
		if pub == state.AllPublishers {
			return allStarted(channel), nil
		}
		p, ok := channel.Publishers.Get(state.ID(pub))
		return ok && p.Status.State == state.StateStarted, nil

	case service.FeedbackRecorderRecording:
		var o recorderFeedback
		if err := decodeRaw(raw, &o); err != nil {
			return false, err
		}
		r, ok := snap.Recorder(state.ID(o.Recorder))
		return ok && r.Status.State == state.StateStarted, nil

	case service.FeedbackEventState:
		o := eventFeedback{State: state.StateStarted}
		if err := decodeRaw(raw, &o); err != nil {
			return false, err
		}
		e, ok := snap.Event(state.ID(o.Event))
		return ok && e.Status.State == o.State, nil

	case service.FeedbackAFURunning:
		var o afuFeedback
		if err := decodeRaw(raw, &o); err != nil {
			return false, err
		}
		return afuRunning(snap, state.ID(o.AFU)), nil
	}
	return false, fmt.Errorf("%w: feedback %q", ErrUnknownAction, kind)
}

func layoutActive(snap *state.Snapshot, composite string) bool {
	ch, layout, ok := splitComposite(composite)
	if !ok {
		return false
	}
	channel, ok := snap.Channel(ch)
	if !ok {
		return false
	}
	l, ok := channel.Layouts.Get(state.ID(layout))
	return ok && l.Active
}

// allStarted reports whether every publisher of ch is started. A channel without publishers
// counts as started, matching how the toggle decides its direction.
func allStarted(ch *state.Channel) bool {
	for _, p := range ch.Publishers.Values() {
		if p.Status.State != state.StateStarted {
			return false
		}
	}
	return true
}

// afuRunning reports whether the unit id (or, when id is empty, any unit) is running.
func afuRunning(snap *state.Snapshot, id state.ID) bool {
	if snap == nil || snap.System == nil {
		return false
	}
	for _, a := range snap.System.AFU {
		if id != "" && a.ID != id {
			continue
		}
		if a.Status.State == "running" || a.Status.State == state.StateStarted {
			return true
		}
	}
	return false
}
