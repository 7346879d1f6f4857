package surface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
	"github.com/edirooss/pearl-bridge/internal/status"
	jsonpatch "github.com/evanphx/json-patch/v5"
	"go.uber.org/zap"
)

// Result is what an action hands back to the caller besides its side effects.
type Result struct {
	// Command is the device command that was sent (start, stop, reset), if any.
	Command string `json:"command,omitempty"`
	// Data is the payload of read actions (layout settings, metadata).
	Data json.RawMessage `json:"data,omitempty"`
	// Skipped is set when the options asked for nothing to be done.
	Skipped bool `json:"skipped,omitempty"`
}

// Run decodes raw for action and executes it.
func (s *Surface) Run(ctx context.Context, action string, raw json.RawMessage) (*Result, error) {
	opts, err := DecodeOptions(action, raw)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, opts)
}

// Execute runs one action. Options that reference unknown entities fail with
// ErrConfigurationInvalid before any device call. Device errors are returned wrapped.
func (s *Surface) Execute(ctx context.Context, opts Options) (*Result, error) {
	switch o := opts.(type) {
	case LayoutOptions:
		return s.changeLayout(ctx, o)
	case PublisherControlOptions:
		return s.controlStreaming(ctx, o)
	case RecorderControlOptions:
		return s.controlRecording(ctx, o)
	case MarkerOptions:
		return s.insertMarker(ctx, o)
	case LayoutDataGetOptions:
		return s.getLayoutData(ctx, o)
	case LayoutDataSetOptions:
		return s.setLayoutData(ctx, o)
	case LayoutDataPatchOptions:
		return s.patchLayoutData(ctx, o)
	case MetadataGetOptions:
		return s.getMetadata(ctx, o)
	case MetadataSetOptions:
		return s.setMetadata(ctx, o)
	case SystemOptions:
		return s.system(ctx, o)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownAction, opts)
}

// invalid reports a configuration problem to the host and returns ErrConfigurationInvalid.
func (s *Surface) invalid(action, msg string, fields ...zap.Field) error {
	s.host.UpdateStatus(status.UnknownWarning, msg+" Please review your button config.")
	s.log.Warn(msg, append([]zap.Field{zap.String("action", action)}, fields...)...)
	return fmt.Errorf("%w: %s", ErrConfigurationInvalid, msg)
}

// resolveLayout validates a "<channel>-<layout>" reference against the live snapshot.
func (s *Surface) resolveLayout(action, composite string) (*state.Channel, *state.Layout, error) {
	chID, layoutID, ok := splitComposite(composite)
	if !ok {
		return nil, nil, s.invalid(action, "Channel and layout are not known!", zap.String("channelIdlayoutId", composite))
	}
	ch, ok := s.Snapshot().Channel(chID)
	if !ok {
		return nil, nil, s.invalid(action, "Action on non existing channel!", zap.String("channel", string(chID)))
	}
	l, ok := ch.Layouts.Get(state.ID(layoutID))
	if !ok {
		return nil, nil, s.invalid(action, "Action on non existing layout!",
			zap.String("channel", string(chID)), zap.String("layout", layoutID))
	}
	return ch, l, nil
}

func (s *Surface) resolveChannel(action, id string) (*state.Channel, error) {
	ch, ok := s.Snapshot().Channel(state.ID(id))
	if !ok {
		return nil, s.invalid(action, "Action on non existing channel!", zap.String("channel", id))
	}
	return ch, nil
}

func (s *Surface) changeLayout(ctx context.Context, o LayoutOptions) (*Result, error) {
	ch, l, err := s.resolveLayout(o.Action(), o.ChannelLayout)
	if err != nil {
		return nil, err
	}
	if err := s.dev.SetActiveLayout(ctx, ch.ID, l.ID); err != nil {
		return nil, fmt.Errorf("change layout of channel %s: %w", ch.ID, err)
	}
	s.tracker.MarkActiveLayout(ch.ID, l.ID)
	s.log.Info("layout changed", zap.String("channel", ch.Name), zap.String("layout", l.Name))
	return &Result{}, nil
}

func (s *Surface) controlStreaming(ctx context.Context, o PublisherControlOptions) (*Result, error) {
	chID, pubID, ok := splitComposite(o.ChannelPublisher)
	if !ok {
		return nil, s.invalid(o.Action(), "Channel or Publisher are not valid!",
			zap.String("channelIdpublisherId", o.ChannelPublisher))
	}
	ch, ok := s.Snapshot().Channel(chID)
	if !ok {
		return nil, s.invalid(o.Action(), "Action on non existing channel!", zap.String("channel", string(chID)))
	}
	all := pubID == state.AllPublishers
	var pub *state.Publisher
	if !all {
		if pub, ok = ch.Publishers.Get(state.ID(pubID)); !ok {
			return nil, s.invalid(o.Action(), "Action on non existing publisher!",
				zap.String("channel", string(chID)), zap.String("publisher", pubID))
		}
	}

	var cmd string
	switch o.Command {
	case CommandNone:
		return &Result{Skipped: true}, nil
	case CommandStart:
		cmd = "start"
	case CommandStop:
		cmd = "stop"
	case CommandToggle:
		streaming := false
		if all {
			streaming = allStarted(ch)
		} else {
			streaming = pub.Status.State == state.StateStarted
		}
		cmd = "start"
		if streaming {
			cmd = "stop"
		}
	default:
		return nil, s.invalid(o.Action(), "Called an unknown action!", zap.Int("startStopAction", int(o.Command)))
	}

	var err error
	if all {
		err = s.dev.ControlAllPublishers(ctx, ch.ID, cmd)
	} else {
		err = s.dev.ControlPublisher(ctx, ch.ID, pub.ID, cmd)
	}
	if err != nil {
		return nil, fmt.Errorf("%s publisher %s: %w", cmd, o.ChannelPublisher, err)
	}
	if err := s.tracker.RefreshPublishers(ctx, ch.ID); err != nil {
		s.log.Debug("publisher refresh failed", zap.String("channel", string(ch.ID)), zap.Error(err))
	}
	return &Result{Command: cmd}, nil
}

func (s *Surface) controlRecording(ctx context.Context, o RecorderControlOptions) (*Result, error) {
	rec, ok := s.Snapshot().Recorder(state.ID(o.Recorder))
	if !ok {
		return nil, s.invalid(o.Action(), "Action on non existing recorder!", zap.String("recorder", o.Recorder))
	}

	var cmd string
	switch o.Command {
	case CommandNone:
		return &Result{Skipped: true}, nil
	case CommandStart:
		cmd = "start"
	case CommandStop:
		cmd = "stop"
	case CommandReset:
		cmd = "reset"
	case CommandToggle:
		cmd = "start"
		if rec.Status.State == state.StateStarted {
			cmd = "stop"
		}
	default:
		return nil, s.invalid(o.Action(), "Called an unknown action!", zap.Int("startStopAction", int(o.Command)))
	}

	if err := s.dev.ControlRecorder(ctx, rec.ID, cmd); err != nil {
		return nil, fmt.Errorf("%s recorder %s: %w", cmd, rec.ID, err)
	}
	if err := s.tracker.RefreshRecorders(ctx); err != nil {
		s.log.Debug("recorder refresh failed", zap.Error(err))
	}
	return &Result{Command: cmd}, nil
}

func (s *Surface) insertMarker(ctx context.Context, o MarkerOptions) (*Result, error) {
	ch, err := s.resolveChannel(o.Action(), o.Channel)
	if err != nil {
		return nil, err
	}
	text := s.host.ParseVariables(o.Text)
	if err := s.dev.InsertBookmark(ctx, ch.ID, text); err != nil {
		return nil, fmt.Errorf("insert marker on channel %s: %w", ch.ID, err)
	}
	s.log.Info("marker sent", zap.String("channel", string(ch.ID)), zap.String("text", text))
	return &Result{}, nil
}

func (s *Surface) getLayoutData(ctx context.Context, o LayoutDataGetOptions) (*Result, error) {
	ch, l, err := s.resolveLayout(o.Action(), o.ChannelLayout)
	if err != nil {
		return nil, err
	}
	raw, err := s.dev.LayoutSettings(ctx, ch.ID, l.ID)
	if err != nil {
		return nil, fmt.Errorf("get layout data: %w", err)
	}
	data := compact(raw)
	s.log.Debug("layout data retrieved",
		zap.String("channel", ch.Name), zap.String("layout", l.Name), zap.ByteString("data", data))
	if o.Destination != "" {
		s.host.SetCustomVariable(o.Destination, string(data))
	}
	return &Result{Data: data}, nil
}

func (s *Surface) setLayoutData(ctx context.Context, o LayoutDataSetOptions) (*Result, error) {
	ch, l, err := s.resolveLayout(o.Action(), o.ChannelLayout)
	if err != nil {
		return nil, err
	}
	src := []byte(s.host.ParseVariables(o.Source))
	if !json.Valid(src) {
		return nil, s.invalid(o.Action(), "Option is no valid JSON!")
	}
	if err := s.dev.SetLayoutSettings(ctx, ch.ID, l.ID, src); err != nil {
		return nil, fmt.Errorf("set layout data: %w", err)
	}
	return &Result{}, nil
}

func (s *Surface) patchLayoutData(ctx context.Context, o LayoutDataPatchOptions) (*Result, error) {
	ch, l, err := s.resolveLayout(o.Action(), o.ChannelLayout)
	if err != nil {
		return nil, err
	}
	patch := []byte(s.host.ParseVariables(o.Patch))
	if !json.Valid(patch) {
		return nil, s.invalid(o.Action(), "Option is no valid JSON!")
	}
	current, err := s.dev.LayoutSettings(ctx, ch.ID, l.ID)
	if err != nil {
		return nil, fmt.Errorf("patch layout data: %w", err)
	}
	patched, err := jsonpatch.MergePatch(current, patch)
	if err != nil {
		return nil, s.invalid(o.Action(), "Merge patch cannot be applied to the layout!", zap.Error(err))
	}
	if err := s.dev.SetLayoutSettings(ctx, ch.ID, l.ID, patched); err != nil {
		return nil, fmt.Errorf("patch layout data: %w", err)
	}
	return &Result{Data: compact(patched)}, nil
}

func (s *Surface) getMetadata(ctx context.Context, o MetadataGetOptions) (*Result, error) {
	ch, err := s.resolveChannel(o.Action(), o.Channel)
	if err != nil {
		return nil, err
	}
	md, err := s.dev.Metadata(ctx, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("get metadata of channel %s: %w", ch.ID, err)
	}
	s.tracker.SetChannelMetadata(ch.ID, md)
	data, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	if o.Destination != "" {
		s.host.SetCustomVariable(o.Destination, string(data))
	}
	return &Result{Data: data}, nil
}

func (s *Surface) setMetadata(ctx context.Context, o MetadataSetOptions) (*Result, error) {
	ch, err := s.resolveChannel(o.Action(), o.Channel)
	if err != nil {
		return nil, err
	}
	md := &state.Metadata{
		Title:     s.host.ParseVariables(o.Title),
		Author:    s.host.ParseVariables(o.Author),
		Copyright: s.host.ParseVariables(o.Copyright),
		Comment:   s.host.ParseVariables(o.Comment),
		RecPrefix: s.host.ParseVariables(o.RecPrefix),
	}
	if len(md.Params()) == 0 {
		return &Result{Skipped: true}, nil
	}
	if err := s.dev.SetMetadata(ctx, ch.ID, md); err != nil {
		return nil, fmt.Errorf("set metadata of channel %s: %w", ch.ID, err)
	}

	merged := &state.Metadata{}
	if ch.Metadata != nil {
		*merged = *ch.Metadata
	}
	for k, v := range md.Params() {
		switch k {
		case "title":
			merged.Title = v
		case "author":
			merged.Author = v
		case "copyright":
			merged.Copyright = v
		case "comment":
			merged.Comment = v
		case "rec_prefix":
			merged.RecPrefix = v
		}
	}
	s.tracker.SetChannelMetadata(ch.ID, merged)
	return &Result{}, nil
}

func (s *Surface) system(ctx context.Context, o SystemOptions) (*Result, error) {
	var err error
	switch o.Action() {
	case ActionRebootSystem:
		err = s.dev.Reboot(ctx)
	case ActionShutdownSystem:
		err = s.dev.Shutdown(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, o.Action())
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.Action(), err)
	}
	s.log.Warn("system command sent", zap.String("action", o.Action()))
	return &Result{}, nil
}

func compact(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
