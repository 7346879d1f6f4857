package surface

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
	"github.com/edirooss/pearl-bridge/internal/pearl"
	"github.com/edirooss/pearl-bridge/internal/service"
	"go.uber.org/zap"
)

// Device is the mutating part of *pearl.Client the action handlers call.
type Device interface {
	SetActiveLayout(ctx context.Context, channel, layout state.ID) error
	ControlPublisher(ctx context.Context, channel, publisher state.ID, command string) error
	ControlAllPublishers(ctx context.Context, channel state.ID, command string) error
	ControlRecorder(ctx context.Context, recorder state.ID, command string) error
	InsertBookmark(ctx context.Context, channel state.ID, text string) error
	LayoutSettings(ctx context.Context, channel, layout state.ID) (json.RawMessage, error)
	SetLayoutSettings(ctx context.Context, channel, layout state.ID, settings json.RawMessage) error
	Metadata(ctx context.Context, channel state.ID) (*state.Metadata, error)
	SetMetadata(ctx context.Context, channel state.ID, m *state.Metadata) error
	Reboot(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

var _ Device = (*pearl.Client)(nil)

// Tracker is the part of *service.Poller that keeps the snapshot in step after an action.
type Tracker interface {
	Store() *state.Store
	RefreshRecorders(ctx context.Context) error
	RefreshPublishers(ctx context.Context, channel state.ID) error
	MarkActiveLayout(channel, layout state.ID) bool
	SetChannelMetadata(channel state.ID, md *state.Metadata) bool
}

var _ Tracker = (*service.Poller)(nil)

// Surface connects the snapshot to a Host. It is the poller's Notifier and the entry point
// for actions and feedback evaluation.
type Surface struct {
	log     *zap.Logger
	dev     Device
	tracker Tracker
	host    Host

	mu   sync.RWMutex
	defs *Definitions
}

var _ service.Notifier = (*Surface)(nil)

func New(log *zap.Logger, dev Device, tracker Tracker, host Host) *Surface {
	if log == nil {
		log = zap.NewNop()
	}
	return &Surface{
		log:     log.Named("surface"),
		dev:     dev,
		tracker: tracker,
		host:    host,
		defs:    BuildDefinitions(nil),
	}
}

// Snapshot returns the live snapshot (nil before the first successful poll).
func (s *Surface) Snapshot() *state.Snapshot { return s.tracker.Store().Load() }

// Definitions returns the definitions from the last rebuild.
func (s *Surface) Definitions() *Definitions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defs
}

// Rebuild regenerates definitions for snap and pushes them to the host.
func (s *Surface) Rebuild(snap *state.Snapshot) {
	defs := BuildDefinitions(snap)
	s.mu.Lock()
	s.defs = defs
	s.mu.Unlock()
	s.log.Debug("definitions rebuilt",
		zap.Int("actions", len(defs.Actions)),
		zap.Int("presets", len(defs.Presets)))
	s.host.SetDefinitions(defs)
}

func (s *Surface) CheckFeedbacks(kinds ...service.FeedbackKind) {
	if len(kinds) == 0 {
		return
	}
	s.host.CheckFeedbacks(kinds...)
}

func (s *Surface) UpdateVariables(snap *state.Snapshot) {
	defs, values := BuildVariables(snap)
	s.host.SetVariables(defs, values)
}

// Evaluate answers one feedback against the live snapshot.
func (s *Surface) Evaluate(kind service.FeedbackKind, raw json.RawMessage) (bool, error) {
	return EvaluateFeedback(s.Snapshot(), kind, raw)
}
