// Package surface turns device snapshots into host control surfaces: action and feedback
// definitions, presets and variables, plus the handlers behind each action.
package surface

import (
	"github.com/edirooss/pearl-bridge/internal/domain/state"
	"github.com/edirooss/pearl-bridge/internal/service"
	"github.com/edirooss/pearl-bridge/internal/status"
)

// Host is the control-panel runtime the bridge drives. Implementations must be safe for
// concurrent use; the poll loop and action handlers call in from different goroutines.
type Host interface {
	status.Sink

	SetDefinitions(defs *Definitions)
	CheckFeedbacks(kinds ...service.FeedbackKind)
	SetVariables(defs []VariableDefinition, values map[string]any)

	// SetCustomVariable stores a user-named variable (action destinations).
	SetCustomVariable(name, value string)
	// ParseVariables expands variable references in text.
	ParseVariables(text string) string
}

// Choice is one dropdown entry. IDs are strings for entity choices and numbers for commands.
type Choice struct {
	ID    any    `json:"id"`
	Label string `json:"label"`
}

// Option describes one input of an action or feedback.
type Option struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Label        string   `json:"label"`
	Choices      []Choice `json:"choices,omitempty"`
	Default      any      `json:"default,omitempty"`
	Tooltip      string   `json:"tooltip,omitempty"`
	UseVariables bool     `json:"useVariables,omitempty"`
}

const (
	OptionDropdown       = "dropdown"
	OptionText           = "textinput"
	OptionCustomVariable = "custom-variable"
)

type ActionDefinition struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Options []Option `json:"options"`
}

// Style is a button style; colors are packed 0xRRGGBB.
type Style struct {
	Text    string `json:"text,omitempty"`
	Size    int    `json:"size,omitempty"`
	Color   int    `json:"color"`
	BgColor int    `json:"bgcolor"`
}

type FeedbackDefinition struct {
	ID           service.FeedbackKind `json:"id"`
	Name         string               `json:"name"`
	Type         string               `json:"type"`
	Description  string               `json:"description"`
	DefaultStyle Style                `json:"defaultStyle"`
	Options      []Option             `json:"options"`
}

type ActionRef struct {
	ActionID string         `json:"actionId"`
	Options  map[string]any `json:"options"`
}

type FeedbackRef struct {
	FeedbackID service.FeedbackKind `json:"feedbackId"`
	Options    map[string]any       `json:"options"`
	Style      Style                `json:"style"`
}

type PresetStep struct {
	Down []ActionRef `json:"down"`
	Up   []ActionRef `json:"up"`
}

// Preset is a ready-made button bound to one dynamic entity.
type Preset struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Category  string        `json:"category"`
	Name      string        `json:"name"`
	Style     Style         `json:"style"`
	Steps     []PresetStep  `json:"steps"`
	Feedbacks []FeedbackRef `json:"feedbacks"`
}

// Definitions is everything the host needs to render controls for one snapshot generation.
type Definitions struct {
	Actions   []ActionDefinition   `json:"actions"`
	Feedbacks []FeedbackDefinition `json:"feedbacks"`
	Presets   []Preset             `json:"presets"`
}

type VariableDefinition struct {
	ID   string `json:"variableId"`
	Name string `json:"name"`
}

func rgb(r, g, b int) int { return r<<16 | g<<8 | b }

func choicesOf(in []state.Choice) []Choice {
	out := make([]Choice, len(in))
	for i, c := range in {
		out[i] = Choice{ID: c.ID, Label: c.Label}
	}
	return out
}
