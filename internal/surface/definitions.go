package surface

import (
	"github.com/edirooss/pearl-bridge/internal/domain/state"
	"github.com/edirooss/pearl-bridge/internal/service"
)

var (
	white = rgb(255, 255, 255)
	black = rgb(0, 0, 0)
	red   = rgb(255, 0, 0)
	green = rgb(0, 255, 0)
	blue  = rgb(0, 51, 153)
	olive = rgb(0, 102, 0)
)

var streamingCommands = []Choice{
	{ID: int(CommandNone), Label: "---"},
	{ID: int(CommandStart), Label: "Start"},
	{ID: int(CommandStop), Label: "Stop"},
	{ID: int(CommandToggle), Label: "Toggle Start/Stop"},
}

var recordingCommands = []Choice{
	{ID: int(CommandNone), Label: "---"},
	{ID: int(CommandStart), Label: "Start"},
	{ID: int(CommandStop), Label: "Stop"},
	{ID: int(CommandReset), Label: "Reset"},
	{ID: int(CommandToggle), Label: "Toggle Start/Stop"},
}

// BuildDefinitions renders actions, feedbacks and presets for snap. A nil snap yields
// definitions with empty dropdowns.
func BuildDefinitions(snap *state.Snapshot) *Definitions {
	return &Definitions{
		Actions:   actionDefinitions(snap),
		Feedbacks: feedbackDefinitions(snap),
		Presets:   presets(snap),
	}
}

func dropdown(id, label string, choices []state.Choice) Option {
	return Option{
		ID:      id,
		Type:    OptionDropdown,
		Label:   label,
		Choices: choicesOf(choices),
		Default: state.FirstID(choices),
	}
}

func text(id, label string, def string) Option {
	return Option{ID: id, Type: OptionText, Label: label, Default: def, UseVariables: true}
}

func actionDefinitions(snap *state.Snapshot) []ActionDefinition {
	layouts := state.ChannelLayoutChoices(snap)
	publishers := state.ChannelPublisherChoices(snap)
	channels := state.ChannelChoices(snap)

	streams := dropdown("channelIdpublisherId", "Channel publishers", publishers)
	streams.Tooltip = `If a channel has only one publisher, select "All Streams". Otherwise pick the publisher to start or stop.`

	return []ActionDefinition{
		{
			ID:      ActionChannelChangeLayout,
			Name:    "Change channel layout",
			Options: []Option{dropdown("channelIdlayoutId", "Change layout to:", layouts)},
		},
		{
			ID:   ActionChannelStreaming,
			Name: "Control Streaming (Publisher)",
			Options: []Option{
				streams,
				{ID: "startStopAction", Type: OptionDropdown, Label: "Action", Choices: streamingCommands, Default: int(CommandStart)},
			},
		},
		{
			ID:   ActionRecorderRecording,
			Name: "Control recording",
			Options: []Option{
				dropdown("recorderId", "Recorder", state.RecorderChoices(snap)),
				{ID: "startStopAction", Type: OptionDropdown, Label: "Action", Choices: recordingCommands, Default: int(CommandStart)},
			},
		},
		{
			ID:   ActionInsertMarker,
			Name: "Insert Marker",
			Options: []Option{
				dropdown("channel", "Channel", channels),
				text("markertext", "Marker text", ""),
			},
		},
		{
			ID:   ActionGetLayoutData,
			Name: "Get layout data",
			Options: []Option{
				dropdown("channelIdlayoutId", "Layout to get", layouts),
				{ID: "destination", Type: OptionCustomVariable, Label: "Destination Variable"},
			},
		},
		{
			ID:   ActionSetLayoutData,
			Name: "Set layout data",
			Options: []Option{
				dropdown("channelIdlayoutId", "Layout to set", layouts),
				text("source", "Layout Data", "{}"),
			},
		},
		{
			ID:   ActionPatchLayoutData,
			Name: "Patch layout data",
			Options: []Option{
				dropdown("channelIdlayoutId", "Layout to patch", layouts),
				text("patch", "Merge patch", "{}"),
			},
		},
		{
			ID:   ActionGetChannelMetadata,
			Name: "Get channel metadata",
			Options: []Option{
				dropdown("channel", "Channel", channels),
				{ID: "destination", Type: OptionCustomVariable, Label: "Destination Variable"},
			},
		},
		{
			ID:   ActionSetChannelMetadata,
			Name: "Set channel metadata",
			Options: []Option{
				dropdown("channel", "Channel", channels),
				text("title", "Title", ""),
				text("author", "Author", ""),
				text("copyright", "Copyright", ""),
				text("comment", "Comment", ""),
				text("rec_prefix", "Filename Prefix", ""),
			},
		},
		{ID: ActionRebootSystem, Name: "Reboot System", Options: []Option{}},
		{ID: ActionShutdownSystem, Name: "Shutdown System", Options: []Option{}},
	}
}

func feedbackDefinitions(snap *state.Snapshot) []FeedbackDefinition {
	publishers := dropdown("channelIdpublisherId", "Channel publisher", state.ChannelPublisherChoices(snap))
	boolean := func(kind service.FeedbackKind, name, desc string, bg int, opts ...Option) FeedbackDefinition {
		return FeedbackDefinition{
			ID:           kind,
			Name:         name,
			Type:         "boolean",
			Description:  desc,
			DefaultStyle: Style{Color: white, BgColor: bg},
			Options:      opts,
		}
	}
	eventStates := []Choice{
		{ID: state.StateStarted, Label: "Started"},
		{ID: state.StateStopped, Label: "Stopped"},
		{ID: state.StatePaused, Label: "Paused"},
	}
	return []FeedbackDefinition{
		boolean(service.FeedbackChannelLayout, "Change style on channel layout change",
			"Change style if the specified layout is active", red,
			dropdown("channelIdlayoutId", "Channel", state.ChannelLayoutChoices(snap))),
		boolean(service.FeedbackStreamingState, "Change style if streaming",
			"Change style if specified channel is streaming", green, publishers),
		boolean(service.FeedbackChannelStreaming, "Change style if streaming",
			"Change style if specified channel is streaming", green, publishers),
		boolean(service.FeedbackRecorderRecording, "Change style if recording",
			"Change style if channel/recorder is recording", green,
			dropdown("recorderId", "Recorders", state.RecorderChoices(snap))),
		boolean(service.FeedbackEventState, "Change style on event state",
			"Change style if the event is in the selected state", green,
			dropdown("eventId", "Event", state.EventChoices(snap)),
			Option{ID: "state", Type: OptionDropdown, Label: "State", Choices: eventStates, Default: state.StateStarted}),
		boolean(service.FeedbackAFURunning, "Change style if auto framing runs",
			"Change style if any (or the given) auto framing unit is running", green,
			Option{ID: "afuId", Type: OptionText, Label: "Unit (empty for any)", Default: ""}),
	}
}

func presets(snap *state.Snapshot) []Preset {
	out := []Preset{}
	if snap == nil {
		return out
	}

	for _, ch := range snap.Channels.Values() {
		for _, l := range ch.Layouts.Values() {
			id := state.CompositeID(ch.ID, string(l.ID))
			out = append(out, Preset{
				ID:       "layout_" + id,
				Type:     "button",
				Category: "Channels",
				Name:     ch.Name + " - " + l.Name,
				Style:    Style{Text: ch.Name + `\n` + l.Name, Size: 7, Color: white, BgColor: black},
				Steps: []PresetStep{{
					Down: []ActionRef{{ActionID: ActionChannelChangeLayout, Options: map[string]any{"channelIdlayoutId": id}}},
					Up:   []ActionRef{},
				}},
				Feedbacks: []FeedbackRef{{
					FeedbackID: service.FeedbackChannelLayout,
					Options:    map[string]any{"channelIdlayoutId": id},
					Style:      Style{Color: white, BgColor: red},
				}},
			})
		}
	}

	for _, ch := range snap.Channels.Values() {
		if ch.Publishers.Len() == 0 {
			continue
		}
		targets := []struct{ id, label string }{{state.AllPublishers, "All Streams"}}
		for _, p := range ch.Publishers.Values() {
			targets = append(targets, struct{ id, label string }{string(p.ID), p.Name})
		}
		for _, t := range targets {
			id := state.CompositeID(ch.ID, t.id)
			out = append(out, Preset{
				ID:       "publisher_" + id,
				Type:     "button",
				Category: "Publishers",
				Name:     ch.Name + " - " + t.label,
				Style:    Style{Text: ch.Name + `\n` + t.label, Size: 7, Color: white, BgColor: blue},
				Steps: []PresetStep{
					streamingStep(id, CommandStart),
					streamingStep(id, CommandStop),
				},
				Feedbacks: []FeedbackRef{{
					FeedbackID: service.FeedbackChannelStreaming,
					Options:    map[string]any{"channelIdpublisherId": id},
					Style:      Style{Color: white, BgColor: green},
				}},
			})
		}
	}

	for _, r := range snap.Recorders.Values() {
		out = append(out, Preset{
			ID:       "recorder_" + string(r.ID),
			Type:     "button",
			Category: "Recorders",
			Name:     r.Name,
			Style:    Style{Text: r.Name, Size: 7, Color: white, BgColor: olive},
			Steps: []PresetStep{
				recordingStep(r.ID, CommandStart),
				recordingStep(r.ID, CommandStop),
			},
			Feedbacks: []FeedbackRef{{
				FeedbackID: service.FeedbackRecorderRecording,
				Options:    map[string]any{"recorderId": string(r.ID)},
				Style:      Style{Color: white, BgColor: red},
			}},
		})
	}

	// Events have no start/stop control on the device API; the preset only shows state.
	for _, c := range state.EventChoices(snap) {
		out = append(out, Preset{
			ID:       "event_" + c.ID,
			Type:     "button",
			Category: "Events",
			Name:     c.Label,
			Style:    Style{Text: c.Label, Size: 7, Color: white, BgColor: black},
			Steps:    []PresetStep{{Down: []ActionRef{}, Up: []ActionRef{}}},
			Feedbacks: []FeedbackRef{{
				FeedbackID: service.FeedbackEventState,
				Options:    map[string]any{"eventId": c.ID, "state": state.StateStarted},
				Style:      Style{Color: white, BgColor: red},
			}},
		})
	}
	return out
}

func streamingStep(id string, cmd Command) PresetStep {
	return PresetStep{
		Down: []ActionRef{{
			ActionID: ActionChannelStreaming,
			Options:  map[string]any{"channelIdpublisherId": id, "startStopAction": int(cmd)},
		}},
		Up: []ActionRef{},
	}
}

func recordingStep(id state.ID, cmd Command) PresetStep {
	return PresetStep{
		Down: []ActionRef{{
			ActionID: ActionRecorderRecording,
			Options:  map[string]any{"recorderId": string(id), "startStopAction": int(cmd)},
		}},
		Up: []ActionRef{},
	}
}
