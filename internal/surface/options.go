package surface

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
	"github.com/edirooss/pearl-bridge/pkg/jsonx"
	"github.com/mcuadros/go-defaults"
)

// Action ids.
const (
	ActionChannelChangeLayout = "channelChangeLayout"
	ActionChannelStreaming    = "channelStreaming"
	ActionRecorderRecording   = "recorderRecording"
	ActionInsertMarker        = "insertMarker"
	ActionGetLayoutData       = "getLayoutData"
	ActionSetLayoutData       = "setLayoutData"
	ActionPatchLayoutData     = "patchLayoutData"
	ActionGetChannelMetadata  = "getChannelMetadata"
	ActionSetChannelMetadata  = "setChannelMetadata"
	ActionRebootSystem        = "rebootSystem"
	ActionShutdownSystem      = "shutdownSystem"
)

var (
	// ErrUnknownAction is returned for action or feedback ids the bridge does not define.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidOptions means the options payload could not be decoded.
	ErrInvalidOptions = errors.New("invalid options")
	// ErrConfigurationInvalid means the options decode but reference something that does not
	// exist or cannot be used. The host status turns to a warning and the device is not called.
	ErrConfigurationInvalid = errors.New("configuration invalid")
)

// Command is the start/stop selector of the streaming and recording actions.
// The host sends it as a number; numeric strings are accepted too.
type Command int

const (
	CommandStop   Command = 0
	CommandStart  Command = 1
	CommandReset  Command = 2
	CommandToggle Command = 3
	CommandNone   Command = 99
)

func (c *Command) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("command %s is not a number", b)
	}
	*c = Command(n)
	return nil
}

// Options is one of the typed option records below; which one is decided by the action id.
type Options interface {
	Action() string
}

type LayoutOptions struct {
	ChannelLayout string `json:"channelIdlayoutId"`
}

type PublisherControlOptions struct {
	ChannelPublisher string  `json:"channelIdpublisherId"`
	Command          Command `json:"startStopAction" default:"1"`
}

type RecorderControlOptions struct {
	Recorder string  `json:"recorderId"`
	Command  Command `json:"startStopAction" default:"1"`
}

type MarkerOptions struct {
	Channel string `json:"channel"`
	Text    string `json:"markertext"`
}

type LayoutDataGetOptions struct {
	ChannelLayout string `json:"channelIdlayoutId"`
	Destination   string `json:"destination"`
}

type LayoutDataSetOptions struct {
	ChannelLayout string `json:"channelIdlayoutId"`
	Source        string `json:"source" default:"{}"`
}

// LayoutDataPatchOptions carries an RFC 7396 merge patch applied to the current layout settings.
type LayoutDataPatchOptions struct {
	ChannelLayout string `json:"channelIdlayoutId"`
	Patch         string `json:"patch" default:"{}"`
}

type MetadataGetOptions struct {
	Channel     string `json:"channel"`
	Destination string `json:"destination"`
}

type MetadataSetOptions struct {
	Channel   string `json:"channel"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Copyright string `json:"copyright"`
	Comment   string `json:"comment"`
	RecPrefix string `json:"rec_prefix"`
}

// SystemOptions is the empty option record of reboot and shutdown.
type SystemOptions struct {
	action string
}

func (LayoutOptions) Action() string           { return ActionChannelChangeLayout }
func (PublisherControlOptions) Action() string { return ActionChannelStreaming }
func (RecorderControlOptions) Action() string  { return ActionRecorderRecording }
func (MarkerOptions) Action() string           { return ActionInsertMarker }
func (LayoutDataGetOptions) Action() string    { return ActionGetLayoutData }
func (LayoutDataSetOptions) Action() string    { return ActionSetLayoutData }
func (LayoutDataPatchOptions) Action() string  { return ActionPatchLayoutData }
func (MetadataGetOptions) Action() string      { return ActionGetChannelMetadata }
func (MetadataSetOptions) Action() string      { return ActionSetChannelMetadata }
func (o SystemOptions) Action() string         { return o.action }

// DecodeOptions decodes raw into the option record of action. Missing fields take their
// declared defaults; unknown fields are rejected. Empty raw means "no options".
func DecodeOptions(action string, raw json.RawMessage) (Options, error) {
	switch action {
	case ActionChannelChangeLayout:
		return decode[LayoutOptions](raw)
	case ActionChannelStreaming:
		return decode[PublisherControlOptions](raw)
	case ActionRecorderRecording:
		return decode[RecorderControlOptions](raw)
	case ActionInsertMarker:
		return decode[MarkerOptions](raw)
	case ActionGetLayoutData:
		return decode[LayoutDataGetOptions](raw)
	case ActionSetLayoutData:
		return decode[LayoutDataSetOptions](raw)
	case ActionPatchLayoutData:
		return decode[LayoutDataPatchOptions](raw)
	case ActionGetChannelMetadata:
		return decode[MetadataGetOptions](raw)
	case ActionSetChannelMetadata:
		return decode[MetadataSetOptions](raw)
	case ActionRebootSystem, ActionShutdownSystem:
		var none struct{}
		if err := decodeRaw(raw, &none); err != nil {
			return nil, err
		}
		return SystemOptions{action: action}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

func decode[T Options](raw json.RawMessage) (Options, error) {
	var opts T
	defaults.SetDefaults(&opts)
	if err := decodeRaw(raw, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

func decodeRaw[T any](raw json.RawMessage, dst *T) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := jsonx.DecodeStrict(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}

// splitComposite splits "<channel>-<sub>" ids. Both halves must be non-empty.
func splitComposite(s string) (state.ID, string, bool) {
	ch, sub, ok := strings.Cut(s, "-")
	if !ok || ch == "" || sub == "" {
		return "", "", false
	}
	return state.ID(ch), sub, true
}
