package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
	"github.com/edirooss/pearl-bridge/internal/pearl"
	"github.com/edirooss/pearl-bridge/internal/status"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultInterval = 10 * time.Second
	MinInterval     = time.Second
	MaxInterval     = 300 * time.Second
)

// ErrAlreadyRunning is returned by Run when the poll loop is active.
var ErrAlreadyRunning = errors.New("poller already running")

// PollerOptions configures a Poller. Zero values pick defaults.
type PollerOptions struct {
	Interval time.Duration
	Notifier Notifier
	Observer Observer
	Status   status.Sink
}

// TickResult describes one successful poll.
type TickResult struct {
	Snapshot   *state.Snapshot
	Structural bool
	Dirty      []FeedbackKind
}

// Poller owns the poll loop: it builds a fresh Snapshot every interval, publishes it to the
// Store, and tells the Notifier what to redraw.
//
// Ticks never overlap; the next one is scheduled only after the previous returned.
// Follow-up refreshes (RefreshRecorders, ...) may run concurrently with a tick and are
// merged copy-on-write.
type Poller struct {
	log    *zap.Logger
	dev    DeviceAPI
	store  *state.Store
	notify Notifier
	obs    Observer
	status status.Sink
	now    func() time.Time

	interval atomic.Int64
	sg       singleflight.Group

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller wires a poller; nothing runs until Run or Tick.
func NewPoller(log *zap.Logger, dev DeviceAPI, store *state.Store, opts PollerOptions) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Status == nil {
		opts.Status = status.Discard
	}
	p := &Poller{
		log:    log.Named("poller"),
		dev:    dev,
		store:  store,
		notify: opts.Notifier,
		obs:    opts.Observer,
		status: opts.Status,
		now:    time.Now,
	}
	p.SetInterval(opts.Interval)
	return p
}

// SetNotifier replaces the notifier. Call before Run.
func (p *Poller) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	p.notify = n
}

// Store returns the store the poller publishes to.
func (p *Poller) Store() *state.Store { return p.store }

// ClampInterval bounds d to [MinInterval, MaxInterval]; zero or negative means DefaultInterval.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultInterval
	case d < MinInterval:
		return MinInterval
	case d > MaxInterval:
		return MaxInterval
	}
	return d
}

// SetInterval changes the poll interval; it takes effect when the next tick is scheduled.
func (p *Poller) SetInterval(d time.Duration) {
	d = ClampInterval(d)
	if old := time.Duration(p.interval.Swap(int64(d))); old != 0 && old != d {
		p.log.Info("poll interval changed", zap.Duration("from", old), zap.Duration("to", d))
	}
}

// Interval returns the current poll interval.
func (p *Poller) Interval() time.Duration { return time.Duration(p.interval.Load()) }

// Run detects the API base, ticks immediately and then every interval until ctx is cancelled or
// Close is called. A failed tick never stops the loop.
func (p *Poller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		cancel()
		return ErrAlreadyRunning
	}
	done := make(chan struct{})
	p.cancel, p.done = cancel, done
	p.mu.Unlock()

	defer func() {
		cancel()
		p.status.UpdateStatus(status.Disconnected, "")
		close(done)
		p.mu.Lock()
		p.cancel, p.done = nil, nil
		p.mu.Unlock()
	}()

	p.status.UpdateStatus(status.Connecting, "")
	base := p.dev.DetectAPIBase(ctx)
	p.log.Info("poll loop started", zap.String("api_base", base), zap.Duration("interval", p.Interval()))

	for {
		if _, err := p.Tick(ctx); err != nil && ctx.Err() == nil {
			p.log.Debug("tick failed", zap.Error(err))
		}

		timer := time.NewTimer(p.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			p.log.Info("poll loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Close stops a running loop and waits for it to return. Safe to call more than once.
func (p *Poller) Close() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// optional holds the best-effort, versioned-API-only results of a tick.
type optional struct {
	system    *state.SystemStatus
	firmware  *state.Firmware
	identity  *state.Identity
	product   *state.Product
	afu       []state.AFU
	events    []state.Event
	evStatus  []pearl.EventStatus
	eventsErr error
}

// Tick runs one poll cycle. On a mandatory failure the Store is untouched and the error is
// returned; the device client has already reported ConnectionFailure.
func (p *Poller) Tick(ctx context.Context) (TickResult, error) {
	start := p.now()

	var (
		channels    []pearl.ChannelSummary
		recorders   []state.Recorder
		recStatuses []pearl.RecorderStatus
		opt         optional
	)

	optCtx, cancelOpt := context.WithCancel(ctx)
	defer cancelOpt()
	optDone := make(chan struct{})
	go func() {
		defer close(optDone)
		if p.dev.Versioned() {
			opt = p.fetchOptional(optCtx)
		}
	}()

	err := mandatory(ctx,
		func(ctx context.Context) (err error) {
			if channels, err = p.dev.ListChannels(ctx); err != nil {
				return fmt.Errorf("list channels: %w", err)
			}
			return nil
		},
		func(ctx context.Context) (err error) {
			if recorders, err = p.dev.ListRecorders(ctx); err != nil {
				return fmt.Errorf("list recorders: %w", err)
			}
			return nil
		},
		func(ctx context.Context) (err error) {
			if recStatuses, err = p.dev.RecorderStatuses(ctx); err != nil {
				return fmt.Errorf("recorder statuses: %w", err)
			}
			return nil
		},
	)
	if err != nil {
		cancelOpt()
		<-optDone
		if ctx.Err() == nil {
			p.log.Warn("no valid answer from device; keeping previous snapshot", zap.Error(err))
		}
		p.obs.ObserveTick("failed", p.now().Sub(start))
		return TickResult{}, fmt.Errorf("poll: %w", err)
	}
	<-optDone

	draft := p.assemble(start, channels, recorders, recStatuses, opt)
	p.fanOut(ctx, draft)
	// A cancelled fan-out leaves empty placeholders; the previous snapshot stays live.
	if err := ctx.Err(); err != nil {
		p.obs.ObserveTick("failed", p.now().Sub(start))
		return TickResult{}, fmt.Errorf("poll: %w", err)
	}

	prev := p.store.Load()
	res := TickResult{Snapshot: draft, Structural: structuralChange(prev, draft)}
	if res.Structural {
		res.Dirty = AllFeedbackKinds()
	} else {
		res.Dirty = dirtyFeedbacks(prev, draft)
	}

	p.store.Swap(draft)

	if res.Structural {
		p.notify.Rebuild(draft)
		p.obs.ObserveStructuralChange()
		if prev != nil {
			p.log.Info("device configuration changed; choices and presets updated")
		}
	}
	if len(res.Dirty) > 0 {
		p.notify.CheckFeedbacks(res.Dirty...)
		p.obs.ObserveDirty(res.Dirty)
	}
	p.notify.UpdateVariables(draft)

	if p.dev.MetadataEnabled() && ctx.Err() == nil {
		if snap, merged := p.mergeMetadata(ctx, draft); merged {
			p.notify.UpdateVariables(snap)
		}
	}

	p.obs.ObserveSnapshot(draft.Counts())
	p.obs.ObserveTick("ok", p.now().Sub(start))
	p.log.Debug("tick complete",
		zap.Bool("structural", res.Structural),
		zap.Any("dirty", res.Dirty),
		zap.Duration("took", p.now().Sub(start)),
	)
	return res, nil
}

func (p *Poller) fetchOptional(ctx context.Context) optional {
	var o optional
	outs := settle(ctx, []task{
		{"system status", func(ctx context.Context) (err error) { o.system, err = p.dev.SystemStatus(ctx); return }},
		{"firmware", func(ctx context.Context) (err error) { o.firmware, err = p.dev.Firmware(ctx); return }},
		{"identity", func(ctx context.Context) (err error) { o.identity, err = p.dev.Identity(ctx); return }},
		{"product", func(ctx context.Context) (err error) { o.product, err = p.dev.Product(ctx); return }},
		{"afu status", func(ctx context.Context) (err error) { o.afu, err = p.dev.AFUStatus(ctx); return }},
		{"events", func(ctx context.Context) (err error) { o.events, err = p.dev.ListEvents(ctx); o.eventsErr = err; return }},
		{"event statuses", func(ctx context.Context) (err error) { o.evStatus, err = p.dev.EventStatuses(ctx); return }},
	})
	for _, f := range failed(outs) {
		p.log.Debug("optional fetch failed", zap.String("what", f.name), zap.Error(f.err))
	}
	return o
}

// assemble builds the draft snapshot from the batch results. Layouts and publishers start
// empty; fanOut fills them in.
func (p *Poller) assemble(at time.Time, channels []pearl.ChannelSummary, recorders []state.Recorder,
	recStatuses []pearl.RecorderStatus, opt optional) *state.Snapshot {
	prev := p.store.Load()
	draft := state.NewSnapshot(at)

	for _, cs := range channels {
		ch := &state.Channel{ID: cs.ID, Name: cs.Name, Encoders: cs.Encoders}
		if old, ok := prev.Channel(cs.ID); ok {
			ch.Metadata = old.Metadata
		}
		draft.Channels.Set(cs.ID, ch)
	}

	for _, r := range recorders {
		draft.Recorders.Set(r.ID, &r)
	}
	for _, rs := range recStatuses {
		// a recorder may appear between the list and status calls
		rec, ok := draft.Recorders.Get(rs.ID)
		if !ok {
			rec = &state.Recorder{ID: rs.ID}
			draft.Recorders.Set(rs.ID, rec)
		}
		rec.Status = rs.Status
	}

	if opt.events != nil && opt.eventsErr == nil {
		var evs state.Ordered[*state.Event]
		for _, e := range opt.events {
			evs.Set(e.ID, &e)
		}
		for _, es := range opt.evStatus {
			ev, ok := evs.Get(es.ID)
			if !ok {
				ev = &state.Event{ID: es.ID}
				evs.Set(es.ID, ev)
			}
			ev.Status = es.Status
		}
		draft.Events = &evs
	}

	if opt.system != nil || opt.firmware != nil || opt.identity != nil || opt.product != nil || opt.afu != nil {
		draft.System = &state.SystemInfo{
			Status:   opt.system,
			Firmware: opt.firmware,
			Identity: opt.identity,
			Product:  opt.product,
			AFU:      opt.afu,
		}
	}
	return draft
}

type channelFetch struct {
	layouts  []state.Layout
	types    []pearl.PublisherType
	statuses []pearl.PublisherStatus
}

// fanOut fetches layouts and publishers of every channel with settle-all semantics and merges
// the results only after every request finished.
func (p *Poller) fanOut(ctx context.Context, draft *state.Snapshot) {
	chs := draft.Channels.Values()
	results := make([]channelFetch, len(chs))
	tasks := make([]task, 0, 3*len(chs))
	for i, ch := range chs {
		id, r := ch.ID, &results[i]
		tasks = append(tasks,
			task{"layouts " + string(id), func(ctx context.Context) (err error) { r.layouts, err = p.dev.Layouts(ctx, id); return }},
			task{"publisher types " + string(id), func(ctx context.Context) (err error) { r.types, err = p.dev.PublisherTypes(ctx, id); return }},
			task{"publisher statuses " + string(id), func(ctx context.Context) (err error) { r.statuses, err = p.dev.PublisherStatuses(ctx, id); return }},
		)
	}
	for _, f := range failed(settle(ctx, tasks)) {
		p.log.Warn("channel fetch failed", zap.String("what", f.name), zap.Error(f.err))
	}

	for i, ch := range chs {
		mergeChannel(ch, results[i])
	}
}

func mergeChannel(ch *state.Channel, r channelFetch) {
	for _, l := range r.layouts {
		ch.Layouts.Set(l.ID, &l)
	}
	for _, t := range r.types {
		pub, ok := ch.Publishers.Get(t.ID)
		if !ok {
			pub = &state.Publisher{ID: t.ID}
			ch.Publishers.Set(t.ID, pub)
		}
		pub.Name, pub.Type = t.Name, t.Type
	}
	for _, s := range r.statuses {
		pub, ok := ch.Publishers.Get(s.ID)
		if !ok {
			pub = &state.Publisher{ID: s.ID}
			ch.Publishers.Set(s.ID, pub)
		}
		pub.Status = s.Status
	}
}

// mergeMetadata fetches legacy metadata for every channel of snap (best-effort) and merges what
// arrived into the live snapshot. It reports the resulting snapshot and whether anything merged.
func (p *Poller) mergeMetadata(ctx context.Context, snap *state.Snapshot) (*state.Snapshot, bool) {
	ids := snap.Channels.IDs()
	got := make([]*state.Metadata, len(ids))
	tasks := make([]task, len(ids))
	for i, id := range ids {
		tasks[i] = task{"metadata " + string(id), func(ctx context.Context) (err error) {
			got[i], err = p.dev.Metadata(ctx, id)
			return
		}}
	}
	for _, f := range failed(settle(ctx, tasks)) {
		p.log.Debug("metadata fetch failed", zap.String("what", f.name), zap.Error(f.err))
	}

	merged := false
	p.store.Update(func(s *state.Snapshot) {
		for i, id := range ids {
			if got[i] == nil {
				continue
			}
			if ch, ok := s.Channels.Get(id); ok {
				ch.Metadata = got[i]
				merged = true
			}
		}
	})
	return p.store.Load(), merged
}
