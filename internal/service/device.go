package service

import (
	"context"
	"time"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
	"github.com/edirooss/pearl-bridge/internal/pearl"
)

// DeviceAPI is the part of *pearl.Client the poller reads from.
type DeviceAPI interface {
	DetectAPIBase(ctx context.Context) string
	Versioned() bool
	MetadataEnabled() bool

	ListChannels(ctx context.Context) ([]pearl.ChannelSummary, error)
	Layouts(ctx context.Context, channel state.ID) ([]state.Layout, error)
	PublisherTypes(ctx context.Context, channel state.ID) ([]pearl.PublisherType, error)
	PublisherStatuses(ctx context.Context, channel state.ID) ([]pearl.PublisherStatus, error)

	ListRecorders(ctx context.Context) ([]state.Recorder, error)
	RecorderStatuses(ctx context.Context) ([]pearl.RecorderStatus, error)

	ListEvents(ctx context.Context) ([]state.Event, error)
	EventStatuses(ctx context.Context) ([]pearl.EventStatus, error)

	SystemStatus(ctx context.Context) (*state.SystemStatus, error)
	Firmware(ctx context.Context) (*state.Firmware, error)
	Identity(ctx context.Context) (*state.Identity, error)
	Product(ctx context.Context) (*state.Product, error)
	AFUStatus(ctx context.Context) ([]state.AFU, error)

	Metadata(ctx context.Context, channel state.ID) (*state.Metadata, error)
}

var _ DeviceAPI = (*pearl.Client)(nil)

// FeedbackKind names a class of host feedbacks that is re-evaluated as a unit.
type FeedbackKind string

const (
	FeedbackChannelLayout     FeedbackKind = "channelLayout"
	FeedbackStreamingState    FeedbackKind = "streamingState"
	FeedbackChannelStreaming  FeedbackKind = "channelStreaming"
	FeedbackRecorderRecording FeedbackKind = "recorderRecording"
	FeedbackEventState        FeedbackKind = "eventState"
	FeedbackAFURunning        FeedbackKind = "afuRunning"
)

// AllFeedbackKinds returns every kind in a fixed order.
func AllFeedbackKinds() []FeedbackKind {
	return []FeedbackKind{
		FeedbackChannelLayout,
		FeedbackStreamingState,
		FeedbackChannelStreaming,
		FeedbackRecorderRecording,
		FeedbackEventState,
		FeedbackAFURunning,
	}
}

// Notifier is told what changed after a snapshot is published.
type Notifier interface {
	// Rebuild regenerates choices, action/feedback definitions and presets.
	Rebuild(snap *state.Snapshot)
	// CheckFeedbacks asks the host to re-evaluate the given feedback kinds.
	CheckFeedbacks(kinds ...FeedbackKind)
	// UpdateVariables recomputes variable definitions and values.
	UpdateVariables(snap *state.Snapshot)
}

// Observer receives poll telemetry.
type Observer interface {
	ObserveTick(result string, elapsed time.Duration)
	ObserveStructuralChange()
	ObserveDirty(kinds []FeedbackKind)
	ObserveSnapshot(counts map[string]int)
}

type nopNotifier struct{}

func (nopNotifier) Rebuild(*state.Snapshot)         {}
func (nopNotifier) CheckFeedbacks(...FeedbackKind)  {}
func (nopNotifier) UpdateVariables(*state.Snapshot) {}

type nopObserver struct{}

func (nopObserver) ObserveTick(string, time.Duration) {}
func (nopObserver) ObserveStructuralChange()          {}
func (nopObserver) ObserveDirty([]FeedbackKind)       {}
func (nopObserver) ObserveSnapshot(map[string]int)    {}
