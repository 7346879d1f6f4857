// Package host implements the host side of the control surface: an in-process Hub that keeps
// the latest definitions, variables and status for HTTP clients and streams every change to
// subscribers, plus a Redis Pub/Sub bridge for out-of-process consumers.
package host

import (
	"maps"
	"regexp"
	"sync"
	"time"

	"github.com/edirooss/pearl-bridge/internal/service"
	"github.com/edirooss/pearl-bridge/internal/status"
	"github.com/edirooss/pearl-bridge/internal/surface"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types.
const (
	EventDefinitions    = "definitions"
	EventFeedbacks      = "feedbacks"
	EventVariables      = "variables"
	EventCustomVariable = "custom_variable"
	EventStatus         = "status"
)

// Event is one notification sent to subscribers and sinks.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Sink receives every event after subscribers. Publish must not block for long.
type Sink interface {
	Publish(ev Event)
}

const subscriberBuffer = 64

// Hub is a surface.Host kept in memory. Safe for concurrent use.
type Hub struct {
	log *zap.Logger
	now func() time.Time

	mu      sync.RWMutex
	defs    *surface.Definitions
	varDefs []surface.VariableDefinition
	values  map[string]any
	custom  map[string]string
	current StatusEntry
	subs    map[string]chan Event
	sinks   []Sink

	history history
}

var _ surface.Host = (*Hub)(nil)

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		log:    log.Named("hub"),
		now:    time.Now,
		values: map[string]any{},
		custom: map[string]string{},
		subs:   map[string]chan Event{},
	}
	h.current = StatusEntry{At: h.now(), Status: status.Disconnected}
	return h
}

// AddSink registers a sink. Call before events flow.
func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	h.sinks = append(h.sinks, s)
	h.mu.Unlock()
}

// UpdateStatus records a status change. Repeats of the current status and message are ignored.
func (h *Hub) UpdateStatus(s status.Status, message string) {
	h.mu.Lock()
	if h.current.Status == s && h.current.Message == message {
		h.mu.Unlock()
		return
	}
	e := StatusEntry{At: h.now(), Status: s, Message: message}
	h.current = e
	h.mu.Unlock()

	h.history.Append(e)
	if s != status.Ok {
		h.log.Info("status changed", zap.Stringer("status", s), zap.String("message", message))
	}
	h.emit(EventStatus, e)
}

func (h *Hub) SetDefinitions(defs *surface.Definitions) {
	h.mu.Lock()
	h.defs = defs
	h.mu.Unlock()
	h.emit(EventDefinitions, defs)
}

func (h *Hub) CheckFeedbacks(kinds ...service.FeedbackKind) {
	h.emit(EventFeedbacks, kinds)
}

func (h *Hub) SetVariables(defs []surface.VariableDefinition, values map[string]any) {
	h.mu.Lock()
	h.varDefs = defs
	h.values = values
	h.mu.Unlock()
	h.emit(EventVariables, values)
}

func (h *Hub) SetCustomVariable(name, value string) {
	h.mu.Lock()
	h.custom[name] = value
	h.mu.Unlock()
	h.emit(EventCustomVariable, map[string]string{"name": name, "value": value})
}

var variableRef = regexp.MustCompile(`\$\((pearl|custom):([A-Za-z0-9_\-]+)\)`)

// ParseVariables replaces $(pearl:<id>) with bridge variables and $(custom:<name>) with custom
// variables. Unknown references are left as written.
func (h *Hub) ParseVariables(text string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return variableRef.ReplaceAllStringFunc(text, func(ref string) string {
		m := variableRef.FindStringSubmatch(ref)
		if m[1] == "custom" {
			if v, ok := h.custom[m[2]]; ok {
				return v
			}
			return ref
		}
		if v, ok := h.values[m[2]]; ok {
			return surface.FormatValue(v)
		}
		return ref
	})
}

// Definitions returns the last definitions, or nil before the first rebuild.
func (h *Hub) Definitions() *surface.Definitions {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.defs
}

// Variables returns the variable definitions and a copy of the values.
func (h *Hub) Variables() ([]surface.VariableDefinition, map[string]any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.varDefs, maps.Clone(h.values)
}

// CustomVariables returns a copy of the custom variables.
func (h *Hub) CustomVariables() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return maps.Clone(h.custom)
}

// Status returns the current status.
func (h *Hub) Status() StatusEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// History returns up to n status changes, newest first.
func (h *Hub) History(n int) []StatusEntry { return h.history.Read(n) }

// Subscribe registers a subscriber. Events that do not fit its buffer are dropped.
// Call cancel to unsubscribe; the channel is closed afterwards.
func (h *Hub) Subscribe() (id string, events <-chan Event, cancel func()) {
	id = uuid.NewString()
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	h.log.Debug("subscriber added", zap.String("subscriber", id))

	var once sync.Once
	return id, ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
			h.log.Debug("subscriber removed", zap.String("subscriber", id))
		})
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) emit(typ string, data any) {
	ev := Event{Type: typ, At: h.now(), Data: data}

	h.mu.RLock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.log.Debug("subscriber too slow, event dropped", zap.String("subscriber", id), zap.String("type", typ))
		}
	}
	sinks := h.sinks
	h.mu.RUnlock()

	for _, s := range sinks {
		s.Publish(ev)
	}
}
