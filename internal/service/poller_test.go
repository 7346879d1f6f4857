package service

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
	"github.com/edirooss/pearl-bridge/internal/pearl"
	"github.com/edirooss/pearl-bridge/internal/pearl/pearltest"
	"github.com/edirooss/pearl-bridge/internal/status"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu        sync.Mutex
	rebuilds  int
	checks    [][]FeedbackKind
	variables int
}

func (n *recordingNotifier) Rebuild(*state.Snapshot) {
	n.mu.Lock()
	n.rebuilds++
	n.mu.Unlock()
}

func (n *recordingNotifier) CheckFeedbacks(kinds ...FeedbackKind) {
	n.mu.Lock()
	n.checks = append(n.checks, append([]FeedbackKind(nil), kinds...))
	n.mu.Unlock()
}

func (n *recordingNotifier) UpdateVariables(*state.Snapshot) {
	n.mu.Lock()
	n.variables++
	n.mu.Unlock()
}

func (n *recordingNotifier) lastCheck() []FeedbackKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.checks) == 0 {
		return nil
	}
	return n.checks[len(n.checks)-1]
}

type fixture struct {
	dev    *pearltest.Device
	client *pearl.Client
	sink   *status.Recorder
	notes  *recordingNotifier
	poller *Poller
}

func newFixture(t *testing.T, mutate func(*pearl.Config)) *fixture {
	t.Helper()
	d := pearltest.New(t)
	cfg := pearl.Config{
		Host:     d.Host(),
		Port:     d.Port(),
		Username: pearltest.Username,
		Password: pearltest.Password,
		Timeout:  time.Second,
		UseAPIv2: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	sink := &status.Recorder{}
	client := pearl.New(zap.NewNop(), cfg, sink)
	client.DetectAPIBase(context.Background())
	notes := &recordingNotifier{}
	p := NewPoller(zap.NewNop(), client, state.NewStore(), PollerOptions{Notifier: notes, Status: sink})
	return &fixture{dev: d, client: client, sink: sink, notes: notes, poller: p}
}

func (f *fixture) tick(t *testing.T) TickResult {
	t.Helper()
	res, err := f.poller.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return res
}

func TestFirstTickBuildsSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	res := f.tick(t)

	if !res.Structural {
		t.Errorf("first tick must be structural")
	}
	if !slices.Equal(res.Dirty, AllFeedbackKinds()) {
		t.Errorf("dirty = %v, want every kind", res.Dirty)
	}
	if f.notes.rebuilds != 1 {
		t.Errorf("rebuilds = %d, want 1", f.notes.rebuilds)
	}

	snap := f.poller.Store().Load()
	if snap != res.Snapshot {
		t.Fatalf("store does not hold the tick's snapshot")
	}
	if got := snap.Channels.IDs(); !slices.Equal(got, []state.ID{"1", "2"}) {
		t.Errorf("channel ids = %v", got)
	}
	ch, _ := snap.Channel("1")
	if got := ch.Layouts.IDs(); !slices.Equal(got, []state.ID{"1", "2"}) {
		t.Errorf("layout ids = %v", got)
	}
	if l, ok := ch.ActiveLayout(); !ok || l.ID != "1" {
		t.Errorf("active layout = %+v", l)
	}
	pub, ok := ch.Publishers.Get("2")
	if !ok || pub.Name != "Facebook" || pub.Type != "rtmp" || pub.Status.State != state.StateStarted {
		t.Errorf("publisher 2 = %+v", pub)
	}
	if rate, ok := pub.Status.SendRate(); !ok || rate != 5800 {
		t.Errorf("send rate = %v %v", rate, ok)
	}
	if enc, ok := ch.VideoEncoder(); !ok || enc.Status == nil || enc.Status.Resolution != "1920x1080" {
		t.Errorf("video encoder = %+v", enc)
	}
	rec, _ := snap.Recorder("2")
	if rec.Name != "Recorder 2" || rec.Status.State != state.StateStarted {
		t.Errorf("recorder 2 = %+v", rec)
	}
	if snap.Events == nil || snap.Events.Len() != 1 {
		t.Fatalf("events = %+v", snap.Events)
	}
	if snap.System == nil || snap.System.Firmware == nil || snap.System.Firmware.Version != "4.24.3" {
		t.Errorf("system = %+v", snap.System)
	}
	if snap.System.Identity == nil || snap.System.Identity.Name != "pearl-studio-a" {
		t.Errorf("identity = %+v", snap.System.Identity)
	}
}

func TestUnversionedTickSkipsOptionalCalls(t *testing.T) {
	f := newFixture(t, func(c *pearl.Config) { c.UseAPIv2 = false })
	snap := f.tick(t).Snapshot

	if snap.Events != nil || snap.System != nil {
		t.Errorf("unversioned snapshot carries events/system: %+v %+v", snap.Events, snap.System)
	}
	if n := f.dev.Count(http.MethodGet, "/api/system/status"); n != 0 {
		t.Errorf("system status requested %d times", n)
	}
}

func TestSecondTickWithUnchangedDeviceIsQuiet(t *testing.T) {
	f := newFixture(t, nil)
	first := f.tick(t).Snapshot
	checks := len(f.notes.checks)

	res := f.tick(t)
	if res.Structural {
		t.Errorf("second tick reported a structural change")
	}
	if len(res.Dirty) != 0 {
		t.Errorf("dirty = %v, want none", res.Dirty)
	}
	if f.notes.rebuilds != 1 || len(f.notes.checks) != checks {
		t.Errorf("host was notified again: rebuilds=%d checks=%d", f.notes.rebuilds, len(f.notes.checks))
	}

	// durations advance between ticks; everything else is equal
	second := res.Snapshot
	a, _ := first.Channel("1")
	b, _ := second.Channel("1")
	pa, _ := a.Publishers.Get("2")
	pb, _ := b.Publishers.Get("2")
	if pb.Status.Duration <= pa.Status.Duration {
		t.Errorf("fake device did not advance durations: %d -> %d", pa.Status.Duration, pb.Status.Duration)
	}
	if !slices.Equal(state.ChannelPublisherChoices(first), state.ChannelPublisherChoices(second)) {
		t.Errorf("choices differ between identical ticks")
	}
}

func TestRecorderFlipMarksOnlyRecorderRecording(t *testing.T) {
	f := newFixture(t, nil)
	f.tick(t)
	if res := f.tick(t); len(res.Dirty) != 0 {
		t.Fatalf("unchanged tick dirty = %v", res.Dirty)
	}

	f.dev.Update(func(s *pearltest.State) { s.Recorder("2").State = "stopped" })
	res := f.tick(t)
	if res.Structural {
		t.Errorf("state flip reported as structural")
	}
	if !slices.Equal(res.Dirty, []FeedbackKind{FeedbackRecorderRecording}) {
		t.Errorf("dirty = %v, want [recorderRecording]", res.Dirty)
	}
	if !slices.Equal(f.notes.lastCheck(), []FeedbackKind{FeedbackRecorderRecording}) {
		t.Errorf("host checked %v", f.notes.lastCheck())
	}
}

func TestStatusChangesMarkTheirFeedbacks(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(s *pearltest.State)
		want   []FeedbackKind
	}{
		{
			name: "layout",
			mutate: func(s *pearltest.State) {
				s.Channel("1").Layout("1").Active = false
				s.Channel("1").Layout("2").Active = true
			},
			want: []FeedbackKind{FeedbackChannelLayout},
		},
		{
			name:   "publisher",
			mutate: func(s *pearltest.State) { s.Channel("1").Publisher("1").State = "started" },
			want:   []FeedbackKind{FeedbackStreamingState, FeedbackChannelStreaming},
		},
		{
			name:   "event",
			mutate: func(s *pearltest.State) { s.Events[0].State = "started" },
			want:   []FeedbackKind{FeedbackEventState},
		},
		{
			name:   "afu",
			mutate: func(s *pearltest.State) { s.AFU[0].State = "started" },
			want:   []FeedbackKind{FeedbackAFURunning},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.tick(t)
			f.dev.Update(tc.mutate)
			res := f.tick(t)
			if res.Structural {
				t.Errorf("reported as structural")
			}
			if !slices.Equal(res.Dirty, tc.want) {
				t.Errorf("dirty = %v, want %v", res.Dirty, tc.want)
			}
		})
	}
}

func TestRenameIsStructural(t *testing.T) {
	cases := map[string]func(s *pearltest.State){
		"channel name":   func(s *pearltest.State) { s.Channel("2").Name = "Spare" },
		"layout name":    func(s *pearltest.State) { s.Channel("1").Layout("2").Name = "Picture in picture" },
		"publisher name": func(s *pearltest.State) { s.Channel("1").Publisher("1").Name = "Twitch" },
		"recorder name":  func(s *pearltest.State) { s.Recorder("1").Name = "ISO" },
		"event name":     func(s *pearltest.State) { s.Events[0].Name = "Evening Show" },
		"new recorder": func(s *pearltest.State) {
			s.Recorders = append(s.Recorders, &pearltest.Recorder{ID: "3", Name: "Recorder 3", State: "stopped"})
		},
		"removed channel": func(s *pearltest.State) { s.Channels = s.Channels[:1] },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.tick(t)
			f.dev.Update(mutate)
			res := f.tick(t)
			if !res.Structural {
				t.Fatalf("not reported as structural")
			}
			if !slices.Equal(res.Dirty, AllFeedbackKinds()) {
				t.Errorf("dirty = %v, want every kind", res.Dirty)
			}
			if f.notes.rebuilds != 2 {
				t.Errorf("rebuilds = %d, want 2", f.notes.rebuilds)
			}
		})
	}
}

func TestMandatoryTimeoutKeepsSnapshot(t *testing.T) {
	f := newFixture(t, func(c *pearl.Config) { c.Timeout = 50 * time.Millisecond })
	before := f.tick(t).Snapshot

	f.dev.Delay("/api/channels", 500*time.Millisecond)
	if _, err := f.poller.Tick(context.Background()); err == nil {
		t.Fatalf("tick succeeded with a timed-out mandatory call")
	}
	if f.poller.Store().Load() != before {
		t.Errorf("snapshot replaced after a failed tick")
	}
	if s, _ := f.sink.Last(); s != status.ConnectionFailure {
		t.Errorf("status = %v, want connection_failure", s)
	}
}

func TestCancelledFanOutKeepsSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	before := f.tick(t).Snapshot
	rebuilds := f.notes.rebuilds

	f.dev.Delay("/api/channels/1/layouts", 400*time.Millisecond)
	f.dev.Delay("/api/channels/1/publishers/status", 400*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if _, err := f.poller.Tick(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Tick err = %v, want deadline exceeded", err)
	}
	if f.poller.Store().Load() != before {
		t.Fatal("snapshot replaced by a cancelled tick")
	}
	if ch, _ := f.poller.Store().Load().Channel("1"); ch.Layouts.Len() == 0 || ch.Publishers.Len() == 0 {
		t.Errorf("channel 1 stripped: %d layouts, %d publishers", ch.Layouts.Len(), ch.Publishers.Len())
	}
	f.notes.mu.Lock()
	defer f.notes.mu.Unlock()
	if f.notes.rebuilds != rebuilds {
		t.Errorf("rebuilds = %d, want %d", f.notes.rebuilds, rebuilds)
	}
}

func TestRunReschedulesAfterIntervalOnFailure(t *testing.T) {
	f := newFixture(t, func(c *pearl.Config) { c.Timeout = 50 * time.Millisecond })
	f.poller.SetInterval(time.Second)
	f.dev.Delay("/api/channels", 300*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.poller.Run(ctx) }()

	var ticks []pearltest.Request
	deadline := time.Now().Add(5 * time.Second)
	for len(ticks) < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
		ticks = ticks[:0]
		for _, r := range f.dev.Requests() {
			if r.Path == "/api/v2.0/channels" {
				ticks = append(ticks, r)
			}
		}
	}
	f.poller.Close()

	if len(ticks) < 2 {
		t.Fatalf("saw %d ticks, want 2", len(ticks))
	}
	if gap := ticks[1].At.Sub(ticks[0].At); gap < 900*time.Millisecond {
		t.Errorf("retry after %v, want the full interval", gap)
	}
	if f.poller.Store().Load() != nil {
		t.Errorf("failed ticks published a snapshot")
	}
	if s, _ := f.sink.Last(); s != status.Disconnected {
		t.Errorf("status after Close = %v, want disconnected", s)
	}
}

func TestOptionalFailureDegradesField(t *testing.T) {
	f := newFixture(t, nil)
	f.dev.Fail("/api/system/status", http.StatusInternalServerError)
	f.dev.Reject("/api/events", "not licensed")

	snap := f.tick(t).Snapshot
	if snap.System == nil || snap.System.Status != nil {
		t.Errorf("system status = %+v, want absent", snap.System)
	}
	if snap.System.Firmware == nil {
		t.Errorf("firmware lost with an unrelated failure")
	}
	if snap.Events != nil {
		t.Errorf("events = %+v, want absent", snap.Events)
	}
}

func TestChannelFanOutSettlesAll(t *testing.T) {
	f := newFixture(t, nil)
	f.dev.Fail("/api/channels/1/layouts", http.StatusServiceUnavailable)

	snap := f.tick(t).Snapshot
	ch1, _ := snap.Channel("1")
	ch2, _ := snap.Channel("2")
	if ch1.Layouts.Len() != 0 {
		t.Errorf("channel 1 layouts = %v", ch1.Layouts.IDs())
	}
	if ch1.Publishers.Len() != 2 {
		t.Errorf("channel 1 publishers lost with a layout failure")
	}
	if ch2.Layouts.Len() != 1 {
		t.Errorf("channel 2 layouts = %v", ch2.Layouts.IDs())
	}
}

func TestRejectedMandatoryCallFailsTick(t *testing.T) {
	f := newFixture(t, nil)
	f.dev.Reject("/api/recorders", "busy")
	if _, err := f.poller.Tick(context.Background()); err == nil {
		t.Fatalf("a rejected mandatory call must fail the tick")
	}
	f.dev.Heal("/api/recorders")

	snap := f.tick(t).Snapshot
	if snap.Recorders.Len() != 2 {
		t.Errorf("recorders = %v", snap.Recorders.IDs())
	}
}

func TestMetadataMergedAndCarriedOver(t *testing.T) {
	f := newFixture(t, func(c *pearl.Config) { c.Metadata.Enabled = true })
	f.tick(t)

	ch, _ := f.poller.Store().Load().Channel("1")
	if ch.Metadata == nil || ch.Metadata.Title != "Morning Show" {
		t.Fatalf("metadata = %+v", ch.Metadata)
	}

	f.dev.Fail("/admin/channel1/get_params.cgi", http.StatusInternalServerError)
	res := f.tick(t)
	if len(res.Dirty) != 0 {
		t.Errorf("metadata changed the dirty set: %v", res.Dirty)
	}
	ch, _ = f.poller.Store().Load().Channel("1")
	if ch.Metadata == nil || ch.Metadata.Title != "Morning Show" {
		t.Errorf("metadata not carried over: %+v", ch.Metadata)
	}
	if s, _ := f.sink.Last(); s != status.Ok {
		t.Errorf("metadata failure changed status to %v", s)
	}
}

func TestRefreshRecorders(t *testing.T) {
	f := newFixture(t, nil)
	before := f.tick(t).Snapshot

	f.dev.Update(func(s *pearltest.State) { s.Recorder("1").State = "started" })
	if err := f.poller.RefreshRecorders(context.Background()); err != nil {
		t.Fatalf("RefreshRecorders: %v", err)
	}
	after := f.poller.Store().Load()
	if rec, _ := after.Recorder("1"); rec.Status.State != state.StateStarted {
		t.Errorf("recorder 1 = %+v", rec)
	}
	if rec, _ := before.Recorder("1"); rec.Status.State != state.StateStopped {
		t.Errorf("published snapshot was mutated in place")
	}
	if !slices.Equal(f.notes.lastCheck(), []FeedbackKind{FeedbackRecorderRecording}) {
		t.Errorf("checked %v", f.notes.lastCheck())
	}
}

func TestRefreshOutlivesCallerCancellation(t *testing.T) {
	f := newFixture(t, nil)
	f.tick(t)

	f.dev.Update(func(s *pearltest.State) { s.Recorder("1").State = "started" })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.poller.RefreshRecorders(ctx); err != nil {
		t.Fatalf("RefreshRecorders: %v", err)
	}
	if rec, _ := f.poller.Store().Load().Recorder("1"); rec.Status.State != state.StateStarted {
		t.Errorf("recorder 1 = %+v", rec.Status)
	}
}

func TestRefreshPublishersAndLayouts(t *testing.T) {
	f := newFixture(t, nil)
	f.tick(t)

	f.dev.Update(func(s *pearltest.State) {
		s.Channel("1").Publisher("2").State = "stopped"
		s.Channel("1").Layout("1").Active = false
		s.Channel("1").Layout("2").Active = true
	})
	if err := f.poller.RefreshPublishers(context.Background(), "1"); err != nil {
		t.Fatalf("RefreshPublishers: %v", err)
	}
	if err := f.poller.RefreshLayouts(context.Background(), "1"); err != nil {
		t.Fatalf("RefreshLayouts: %v", err)
	}

	ch, _ := f.poller.Store().Load().Channel("1")
	if pub, _ := ch.Publishers.Get("2"); pub.Status.State != state.StateStopped {
		t.Errorf("publisher 2 = %+v", pub.Status)
	}
	if l, _ := ch.ActiveLayout(); l == nil || l.ID != "2" {
		t.Errorf("active layout = %+v", l)
	}
}

func TestMarkActiveLayoutKeepsOneActive(t *testing.T) {
	f := newFixture(t, nil)
	f.tick(t)

	if !f.poller.MarkActiveLayout("1", "2") {
		t.Fatalf("MarkActiveLayout reported missing layout")
	}
	ch, _ := f.poller.Store().Load().Channel("1")
	active := 0
	for _, l := range ch.Layouts.Values() {
		if l.Active {
			active++
		}
	}
	if active != 1 {
		t.Errorf("%d active layouts", active)
	}
	if f.poller.MarkActiveLayout("1", "9") {
		t.Errorf("unknown layout accepted")
	}
}

func TestClampInterval(t *testing.T) {
	cases := []struct{ in, want time.Duration }{
		{0, DefaultInterval},
		{-time.Second, DefaultInterval},
		{500 * time.Millisecond, MinInterval},
		{30 * time.Second, 30 * time.Second},
		{time.Hour, MaxInterval},
	}
	for _, tc := range cases {
		if got := ClampInterval(tc.in); got != tc.want {
			t.Errorf("ClampInterval(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
