package service

import (
	"context"
	"fmt"
	"time"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
)

// refreshTimeout bounds a coalesced refresh once it is detached from the first caller.
const refreshTimeout = 10 * time.Second

// shared returns the context a coalesced refresh runs under: it keeps ctx's values but not its
// cancellation, since other callers may be waiting on the same result.
func shared(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
}

// RefreshRecorders re-reads recorder statuses after a control action and merges them into the
// live snapshot. Concurrent calls share one request.
func (p *Poller) RefreshRecorders(ctx context.Context) error {
	_, err, _ := p.sg.Do("recorders", func() (any, error) {
		ctx, cancel := shared(ctx)
		defer cancel()
		rows, err := p.dev.RecorderStatuses(ctx)
		if err != nil {
			return nil, fmt.Errorf("refresh recorders: %w", err)
		}
		p.store.Update(func(s *state.Snapshot) {
			for _, rs := range rows {
				if rec, ok := s.Recorders.Get(rs.ID); ok {
					rec.Status = rs.Status
				}
			}
		})
		p.log.Debug("recorder states refreshed")
		p.notify.CheckFeedbacks(FeedbackRecorderRecording)
		p.notify.UpdateVariables(p.store.Load())
		return nil, nil
	})
	return err
}

// RefreshPublishers re-reads the publisher statuses of one channel.
func (p *Poller) RefreshPublishers(ctx context.Context, channel state.ID) error {
	_, err, _ := p.sg.Do("publishers/"+string(channel), func() (any, error) {
		ctx, cancel := shared(ctx)
		defer cancel()
		rows, err := p.dev.PublisherStatuses(ctx, channel)
		if err != nil {
			return nil, fmt.Errorf("refresh publishers of channel %s: %w", channel, err)
		}
		p.store.Update(func(s *state.Snapshot) {
			ch, ok := s.Channels.Get(channel)
			if !ok {
				return
			}
			for _, ps := range rows {
				if pub, ok := ch.Publishers.Get(ps.ID); ok {
					pub.Status = ps.Status
				}
			}
		})
		p.notify.CheckFeedbacks(FeedbackStreamingState, FeedbackChannelStreaming)
		p.notify.UpdateVariables(p.store.Load())
		return nil, nil
	})
	return err
}

// RefreshLayouts re-reads the active flags of one channel's layouts.
func (p *Poller) RefreshLayouts(ctx context.Context, channel state.ID) error {
	_, err, _ := p.sg.Do("layouts/"+string(channel), func() (any, error) {
		ctx, cancel := shared(ctx)
		defer cancel()
		rows, err := p.dev.Layouts(ctx, channel)
		if err != nil {
			return nil, fmt.Errorf("refresh layouts of channel %s: %w", channel, err)
		}
		p.store.Update(func(s *state.Snapshot) {
			ch, ok := s.Channels.Get(channel)
			if !ok {
				return
			}
			for _, l := range rows {
				if cur, ok := ch.Layouts.Get(l.ID); ok {
					cur.Active = l.Active
				}
			}
		})
		p.notify.CheckFeedbacks(FeedbackChannelLayout)
		p.notify.UpdateVariables(p.store.Load())
		return nil, nil
	})
	return err
}

// MarkActiveLayout flips the local active flags of a channel so that exactly layout is active.
// It reports false when the channel or layout is no longer in the snapshot.
func (p *Poller) MarkActiveLayout(channel, layout state.ID) bool {
	found := false
	p.store.Update(func(s *state.Snapshot) {
		ch, ok := s.Channels.Get(channel)
		if !ok || !ch.Layouts.Has(layout) {
			return
		}
		found = true
		for _, l := range ch.Layouts.Values() {
			l.Active = l.ID == layout
		}
	})
	if found {
		p.notify.CheckFeedbacks(FeedbackChannelLayout)
		p.notify.UpdateVariables(p.store.Load())
	}
	return found
}

// SetChannelMetadata replaces one channel's metadata in the live snapshot.
func (p *Poller) SetChannelMetadata(channel state.ID, md *state.Metadata) bool {
	found := false
	p.store.Update(func(s *state.Snapshot) {
		if ch, ok := s.Channels.Get(channel); ok {
			ch.Metadata = md
			found = true
		}
	})
	if found {
		p.notify.UpdateVariables(p.store.Load())
	}
	return found
}
