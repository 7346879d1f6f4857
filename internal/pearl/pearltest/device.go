// Package pearltest provides a scripted, in-memory Pearl device served over httptest.
package pearltest

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	Username = "admin"
	Password = "secret"
)

type Layout struct {
	ID     string
	Name   string
	Active bool
}

type Publisher struct {
	ID       string
	Name     string
	Type     string
	State    string
	Duration int64
	SendRate *float64
}

type Encoder struct {
	ID         string
	Type       string
	Resolution string
	Framerate  string
	Bitrate    string
}

type Channel struct {
	ID         string
	Name       string
	Layouts    []*Layout
	Publishers []*Publisher
	Encoders   []Encoder

	Bookmarks []string
	Params    map[string]string          // legacy CGI parameters
	Settings  map[string]json.RawMessage // layout id -> settings blob
}

type Recorder struct {
	ID       string
	Name     string
	State    string
	Duration int64
	Active   string
}

type Event struct {
	ID    string
	Name  string
	State string
}

type AFU struct {
	ID    string
	State string
}

// State is everything the fake device reports. Mutate it through Device.Update.
type State struct {
	Channels  []*Channel
	Recorders []*Recorder
	Events    []*Event
	AFU       []*AFU

	Firmware    string
	ProductName string
	Identity    [3]string // name, location, description

	// Versioned serves /api/v2.0 in addition to /api.
	Versioned bool
	// LegacyIdentity serves the identity at /system/identity only.
	LegacyIdentity bool

	// MetadataUsername, when set, is the only account accepted by the CGI scripts.
	MetadataUsername string
	MetadataPassword string

	Reboots   int
	Shutdowns int
}

// Request is one recorded request as the device saw it.
type Request struct {
	Method string
	Path   string
	Query  string
	Body   []byte
	At     time.Time
}

type fault struct {
	status int
	reject string
	body   string
	delay  time.Duration
}

// Device is a fake Pearl. The zero value is not usable; call New.
type Device struct {
	srv *httptest.Server

	mu       sync.Mutex
	state    *State
	requests []Request
	faults   map[string]fault
}

// New starts a device preloaded with DefaultState. It is closed on test cleanup.
func New(tb testing.TB) *Device {
	tb.Helper()
	d := &Device{state: DefaultState(), faults: make(map[string]fault)}
	d.srv = httptest.NewServer(d)
	tb.Cleanup(d.srv.Close)
	return d
}

// DefaultState describes two channels, two recorders and one event.
//
//	channel 1 "Main":   layouts 1 (active), 2; publishers 1 stopped, 2 started
//	channel 2 "Backup": layout 1 (active); no publishers
//	recorder 1 stopped, recorder 2 started
func DefaultState() *State {
	rate := 5800.0
	return &State{
		Channels: []*Channel{
			{
				ID:   "1",
				Name: "Main",
				Layouts: []*Layout{
					{ID: "1", Name: "Side by side", Active: true},
					{ID: "2", Name: "Fullscreen"},
				},
				Publishers: []*Publisher{
					{ID: "1", Name: "YouTube", Type: "rtmp", State: "stopped"},
					{ID: "2", Name: "Facebook", Type: "rtmp", State: "started", Duration: 30, SendRate: &rate},
				},
				Encoders: []Encoder{
					{ID: "1", Type: "video", Resolution: "1920x1080", Framerate: "30", Bitrate: "6000"},
					{ID: "2", Type: "audio", Bitrate: "128"},
				},
				Params:   map[string]string{"title": "Morning Show", "author": "Studio A"},
				Settings: map[string]json.RawMessage{},
			},
			{
				ID:       "2",
				Name:     "Backup",
				Layouts:  []*Layout{{ID: "1", Name: "Default", Active: true}},
				Params:   map[string]string{},
				Settings: map[string]json.RawMessage{},
			},
		},
		Recorders: []*Recorder{
			{ID: "1", Name: "Recorder 1", State: "stopped"},
			{ID: "2", Name: "Recorder 2", State: "started", Duration: 120, Active: "1"},
		},
		Events:      []*Event{{ID: "ev1", Name: "Morning Show", State: "stopped"}},
		AFU:         []*AFU{{ID: "1", State: "stopped"}},
		Firmware:    "4.24.3",
		ProductName: "Pearl-2",
		Identity:    [3]string{"pearl-studio-a", "Studio A", "Main studio encoder"},
		Versioned:   true,
	}
}

// Host returns the listener IP.
func (d *Device) Host() string {
	return d.srv.Listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listener port.
func (d *Device) Port() int {
	return d.srv.Listener.Addr().(*net.TCPAddr).Port
}

// URL returns the base URL of the device.
func (d *Device) URL() string { return d.srv.URL }

// Update runs fn with exclusive access to the device state.
func (d *Device) Update(fn func(s *State)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.state)
}

// Requests returns a copy of the request log.
func (d *Device) Requests() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Request, len(d.requests))
	copy(out, d.requests)
	return out
}

// Count returns how many requests matched method and path (query excluded).
func (d *Device) Count(method, path string) int {
	n := 0
	for _, r := range d.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// ResetRequests clears the request log.
func (d *Device) ResetRequests() {
	d.mu.Lock()
	d.requests = nil
	d.mu.Unlock()
}

// Fail makes every request to path answer with the HTTP status code. Paths are written
// against /api; the versioned prefix is matched too.
func (d *Device) Fail(path string, code int) { d.setFault(path, func(f *fault) { f.status = code }) }

// Reject makes path answer with a well-formed error envelope carrying msg.
func (d *Device) Reject(path, msg string) { d.setFault(path, func(f *fault) { f.reject = msg }) }

// Delay holds requests to path for dur (or until the client gives up).
func (d *Device) Delay(path string, dur time.Duration) { d.setFault(path, func(f *fault) { f.delay = dur }) }

// Respond answers requests to path with body verbatim, after authentication.
func (d *Device) Respond(path, body string) { d.setFault(path, func(f *fault) { f.body = body }) }

// Heal removes every fault on path.
func (d *Device) Heal(path string) {
	d.mu.Lock()
	delete(d.faults, path)
	d.mu.Unlock()
}

func (d *Device) setFault(path string, fn func(f *fault)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := d.faults[path]
	fn(&f)
	d.faults[path] = f
}

func (d *Device) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	d.mu.Lock()
	d.requests = append(d.requests, Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body, At: time.Now()})
	rest, versioned := splitAPIPath(r.URL.Path)
	key := r.URL.Path
	if rest != "" {
		key = "/api" + rest
	}
	f := d.faults[key]
	d.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-r.Context().Done():
			return
		}
	}
	if f.status != 0 {
		http.Error(w, http.StatusText(f.status), f.status)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if strings.HasPrefix(r.URL.Path, "/admin/") {
		d.serveLegacy(w, r)
		return
	}
	if user, pass, ok := r.BasicAuth(); !ok || user != Username || pass != Password {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if f.reject != "" {
		writeJSON(w, map[string]any{"status": "error", "message": f.reject})
		return
	}
	if f.body != "" {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, f.body)
		return
	}
	if rest == "" || (versioned && !d.state.Versioned) {
		http.NotFound(w, r)
		return
	}
	d.serveAPI(w, r, strings.Split(strings.Trim(rest, "/"), "/"), body)
}

// splitAPIPath strips /api or /api/v2.0 and reports which one matched.
func splitAPIPath(p string) (rest string, versioned bool) {
	switch {
	case strings.HasPrefix(p, "/api/v2.0/"):
		return p[len("/api/v2.0"):], true
	case strings.HasPrefix(p, "/api/"):
		return p[len("/api"):], false
	}
	return "", false
}

func (d *Device) serveAPI(w http.ResponseWriter, r *http.Request, seg []string, body []byte) {
	s := d.state
	route := func(method string, parts ...string) bool {
		if len(parts) != len(seg) || r.Method != method {
			return false
		}
		for i, p := range parts {
			if p != "*" && p != seg[i] {
				return false
			}
		}
		return true
	}

	switch {
	case route(http.MethodGet, "channels"):
		out := make([]map[string]any, 0, len(s.Channels))
		for _, ch := range s.Channels {
			row := map[string]any{"id": jsonID(ch.ID), "name": ch.Name}
			if r.URL.Query().Get("publishers") == "yes" {
				pubs := make([]map[string]any, 0, len(ch.Publishers))
				for _, p := range ch.Publishers {
					pubs = append(pubs, map[string]any{"id": jsonID(p.ID), "name": p.Name, "type": p.Type})
				}
				row["publishers"] = pubs
			}
			if r.URL.Query().Get("encoders") == "yes" {
				encs := make([]map[string]any, 0, len(ch.Encoders))
				for _, e := range ch.Encoders {
					encs = append(encs, map[string]any{
						"id": jsonID(e.ID), "type": e.Type,
						"status": map[string]any{"resolution": e.Resolution, "framerate": e.Framerate, "bitrate": e.Bitrate},
					})
				}
				row["encoders"] = encs
			}
			out = append(out, row)
		}
		ok(w, out)

	case route(http.MethodGet, "channels", "*", "layouts"):
		ch := s.Channel(seg[1])
		if ch == nil {
			reject(w, "channel not found")
			return
		}
		out := make([]map[string]any, 0, len(ch.Layouts))
		for _, l := range ch.Layouts {
			out = append(out, map[string]any{"id": jsonID(l.ID), "name": l.Name, "active": l.Active})
		}
		ok(w, out)

	case route(http.MethodPut, "channels", "*", "layouts", "active"):
		ch := s.Channel(seg[1])
		var req struct {
			ID json.Number `json:"id"`
		}
		if ch == nil || json.Unmarshal(body, &req) != nil || ch.Layout(req.ID.String()) == nil {
			reject(w, "layout not found")
			return
		}
		for _, l := range ch.Layouts {
			l.Active = l.ID == req.ID.String()
		}
		ok(w, nil)

	case route(http.MethodGet, "channels", "*", "layouts", "*", "settings"):
		ch := s.Channel(seg[1])
		if ch == nil || ch.Layout(seg[3]) == nil {
			reject(w, "layout not found")
			return
		}
		blob, found := ch.Settings[seg[3]]
		if !found {
			blob = json.RawMessage(`{"name":` + strconv.Quote(ch.Layout(seg[3]).Name) + `,"sources":[]}`)
		}
		ok(w, blob)

	case route(http.MethodPut, "channels", "*", "layouts", "*", "settings"):
		ch := s.Channel(seg[1])
		if ch == nil || ch.Layout(seg[3]) == nil {
			reject(w, "layout not found")
			return
		}
		if !json.Valid(body) {
			reject(w, "invalid layout")
			return
		}
		if ch.Settings == nil {
			ch.Settings = make(map[string]json.RawMessage)
		}
		ch.Settings[seg[3]] = append(json.RawMessage(nil), body...)
		ok(w, nil)

	case route(http.MethodGet, "channels", "*", "publishers", "type"):
		ch := s.Channel(seg[1])
		if ch == nil {
			reject(w, "channel not found")
			return
		}
		out := make([]map[string]any, 0, len(ch.Publishers))
		for _, p := range ch.Publishers {
			out = append(out, map[string]any{"id": jsonID(p.ID), "name": p.Name, "type": p.Type})
		}
		ok(w, out)

	case route(http.MethodGet, "channels", "*", "publishers", "status"):
		ch := s.Channel(seg[1])
		if ch == nil {
			reject(w, "channel not found")
			return
		}
		out := make([]map[string]any, 0, len(ch.Publishers))
		for _, p := range ch.Publishers {
			if p.State == "started" {
				p.Duration++
			}
			st := map[string]any{"state": p.State, "duration": p.Duration}
			if p.SendRate != nil {
				st["statistics"] = map[string]any{"current": map[string]any{"send_rate": *p.SendRate}}
			}
			out = append(out, map[string]any{"id": jsonID(p.ID), "status": st})
		}
		ok(w, out)

	case route(http.MethodPost, "channels", "*", "publishers", "control", "*"):
		ch := s.Channel(seg[1])
		state, valid := controlState(seg[4])
		if ch == nil || !valid {
			reject(w, "invalid publisher control")
			return
		}
		for _, p := range ch.Publishers {
			p.State = state
		}
		ok(w, nil)

	case route(http.MethodPost, "channels", "*", "publishers", "*", "control", "*"):
		ch := s.Channel(seg[1])
		state, valid := controlState(seg[5])
		if ch == nil || ch.Publisher(seg[3]) == nil || !valid {
			reject(w, "invalid publisher control")
			return
		}
		ch.Publisher(seg[3]).State = state
		ok(w, nil)

	case route(http.MethodPost, "channels", "*", "bookmarks"):
		ch := s.Channel(seg[1])
		var req struct {
			Text string `json:"text"`
		}
		if ch == nil || json.Unmarshal(body, &req) != nil {
			reject(w, "invalid bookmark")
			return
		}
		ch.Bookmarks = append(ch.Bookmarks, req.Text)
		ok(w, nil)

	case route(http.MethodGet, "recorders"):
		out := make([]map[string]any, 0, len(s.Recorders))
		for _, rec := range s.Recorders {
			out = append(out, map[string]any{"id": jsonID(rec.ID), "name": rec.Name})
		}
		ok(w, out)

	case route(http.MethodGet, "recorders", "status"):
		out := make([]map[string]any, 0, len(s.Recorders))
		for _, rec := range s.Recorders {
			if rec.State == "started" {
				rec.Duration++
			}
			out = append(out, map[string]any{
				"id":     jsonID(rec.ID),
				"status": map[string]any{"state": rec.State, "duration": rec.Duration, "active": rec.Active},
			})
		}
		ok(w, out)

	case route(http.MethodPost, "recorders", "*", "control", "*"):
		rec := s.Recorder(seg[1])
		if rec == nil {
			reject(w, "recorder not found")
			return
		}
		switch seg[3] {
		case "start":
			rec.State = "started"
		case "stop":
			rec.State = "stopped"
		case "reset":
			rec.Duration = 0
		default:
			reject(w, "unknown command")
			return
		}
		ok(w, nil)

	case route(http.MethodGet, "events"):
		out := make([]map[string]any, 0, len(s.Events))
		for _, ev := range s.Events {
			out = append(out, map[string]any{"id": ev.ID, "name": ev.Name})
		}
		ok(w, out)

	case route(http.MethodGet, "events", "status"):
		out := make([]map[string]any, 0, len(s.Events))
		for _, ev := range s.Events {
			out = append(out, map[string]any{"id": ev.ID, "status": map[string]any{"state": ev.State}})
		}
		ok(w, out)

	case route(http.MethodGet, "system", "status"):
		ok(w, map[string]any{"date": "2026-10-15T10:00:00Z", "uptime": 3600, "cpuload": 12, "cputemp": 48})

	case route(http.MethodGet, "system", "firmware"):
		ok(w, map[string]any{"version": s.Firmware, "product_name": s.ProductName})

	case route(http.MethodGet, "system", "firmware", "version"):
		ok(w, s.Firmware)

	case route(http.MethodGet, "system", "product"):
		ok(w, map[string]any{"name": s.ProductName})

	case route(http.MethodGet, "system", "ident"), route(http.MethodGet, "system", "identity"):
		if (seg[1] == "ident") == s.LegacyIdentity {
			http.NotFound(w, r)
			return
		}
		ok(w, map[string]any{"name": s.Identity[0], "location": s.Identity[1], "description": s.Identity[2]})

	case route(http.MethodGet, "afu", "status"):
		out := make([]map[string]any, 0, len(s.AFU))
		for _, a := range s.AFU {
			out = append(out, map[string]any{"id": jsonID(a.ID), "status": map[string]any{"state": a.State}})
		}
		ok(w, out)

	case route(http.MethodPost, "system", "reboot"):
		s.Reboots++
		ok(w, nil)

	case route(http.MethodPost, "system", "shutdown"):
		s.Shutdowns++
		ok(w, nil)

	default:
		http.NotFound(w, r)
	}
}

// serveLegacy answers /admin/channel{id}/get_params.cgi and set_params.cgi in key=value text.
func (d *Device) serveLegacy(w http.ResponseWriter, r *http.Request) {
	user, pass, hasAuth := r.BasicAuth()
	wantUser, wantPass := Username, Password
	if d.state.MetadataUsername != "" {
		wantUser, wantPass = d.state.MetadataUsername, d.state.MetadataPassword
	}
	if !hasAuth || user != wantUser || pass != wantPass {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, script, found := strings.Cut(strings.TrimPrefix(r.URL.Path, "/admin/channel"), "/")
	ch := d.state.Channel(id)
	if !found || ch == nil {
		http.NotFound(w, r)
		return
	}
	if ch.Params == nil {
		ch.Params = make(map[string]string)
	}

	w.Header().Set("Content-Type", "text/plain")
	switch script {
	case "get_params.cgi":
		var b strings.Builder
		for _, k := range strings.Split(r.URL.RawQuery, "&") {
			if k == "" {
				continue
			}
			b.WriteString(k + "=" + url.QueryEscape(ch.Params[k]) + "\n")
		}
		_, _ = io.WriteString(w, b.String())
	case "set_params.cgi":
		q, err := url.ParseQuery(r.URL.RawQuery)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for k := range q {
			ch.Params[k] = q.Get(k)
		}
		_, _ = io.WriteString(w, "OK\n")
	default:
		http.NotFound(w, r)
	}
}

// Channel returns the channel with id, or nil.
func (s *State) Channel(id string) *Channel {
	for _, ch := range s.Channels {
		if ch.ID == id {
			return ch
		}
	}
	return nil
}

// Recorder returns the recorder with id, or nil.
func (s *State) Recorder(id string) *Recorder {
	for _, rec := range s.Recorders {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

// Layout returns the layout with id, or nil.
func (ch *Channel) Layout(id string) *Layout {
	for _, l := range ch.Layouts {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// Publisher returns the publisher with id, or nil.
func (ch *Channel) Publisher(id string) *Publisher {
	for _, p := range ch.Publishers {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func controlState(cmd string) (string, bool) {
	switch cmd {
	case "start":
		return "started", true
	case "stop":
		return "stopped", true
	}
	return "", false
}

// jsonID reports numeric ids as JSON numbers, the way the device mixes them.
func jsonID(id string) any {
	if n, err := strconv.Atoi(id); err == nil {
		return n
	}
	return id
}

func ok(w http.ResponseWriter, result any) {
	env := map[string]any{"status": "ok"}
	if result != nil {
		env["result"] = result
	}
	writeJSON(w, env)
}

func reject(w http.ResponseWriter, msg string) {
	writeJSON(w, map[string]any{"status": "error", "message": msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
