package state

// Choice is one dropdown option offered to the host.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// AllPublishers is the synthetic publisher id addressing every stream of a channel.
const AllPublishers = "all"

// CompositeID joins a channel id with a sub-entity id ("<channel>-<sub>").
func CompositeID(channel ID, sub string) string { return string(channel) + "-" + sub }

// ChannelChoices lists every channel.
func ChannelChoices(s *Snapshot) []Choice {
	out := []Choice{}
	if s == nil {
		return out
	}
	for _, ch := range s.Channels.Values() {
		out = append(out, Choice{ID: string(ch.ID), Label: ch.Name})
	}
	return out
}

// ChannelLayoutChoices lists every layout of every channel as "<channel>-<layout>".
func ChannelLayoutChoices(s *Snapshot) []Choice {
	out := []Choice{}
	if s == nil {
		return out
	}
	for _, ch := range s.Channels.Values() {
		for _, l := range ch.Layouts.Values() {
			out = append(out, Choice{
				ID:    CompositeID(ch.ID, string(l.ID)),
				Label: ch.Name + " - " + l.Name,
			})
		}
	}
	return out
}

// ChannelPublisherChoices lists, for each channel with at least one publisher, the synthetic
// "<channel>-all" entry first, then every publisher in device order.
func ChannelPublisherChoices(s *Snapshot) []Choice {
	out := []Choice{}
	if s == nil {
		return out
	}
	for _, ch := range s.Channels.Values() {
		if ch.Publishers.Len() == 0 {
			continue
		}
		out = append(out, Choice{
			ID:    CompositeID(ch.ID, AllPublishers),
			Label: ch.Name + " - All Streams",
		})
		for _, p := range ch.Publishers.Values() {
			out = append(out, Choice{
				ID:    CompositeID(ch.ID, string(p.ID)),
				Label: ch.Name + " - " + p.Name,
			})
		}
	}
	return out
}

// RecorderChoices lists every recorder.
func RecorderChoices(s *Snapshot) []Choice {
	out := []Choice{}
	if s == nil {
		return out
	}
	for _, r := range s.Recorders.Values() {
		out = append(out, Choice{ID: string(r.ID), Label: r.Name})
	}
	return out
}

// EventChoices lists every event; unnamed events are labelled by id.
func EventChoices(s *Snapshot) []Choice {
	out := []Choice{}
	if s == nil || s.Events == nil {
		return out
	}
	for _, e := range s.Events.Values() {
		label := e.Name
		if label == "" {
			label = string(e.ID)
		}
		out = append(out, Choice{ID: string(e.ID), Label: label})
	}
	return out
}

// FirstID returns the id of the first choice, or "" when there is none.
func FirstID(choices []Choice) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[0].ID
}
