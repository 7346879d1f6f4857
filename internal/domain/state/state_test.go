package state

import (
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"
)

func sample() *Snapshot {
	s := NewSnapshot(time.Unix(0, 0))
	ch := &Channel{ID: "1", Name: "Main"}
	ch.Layouts.Set("1", &Layout{ID: "1", Name: "Camera", Active: true})
	ch.Layouts.Set("2", &Layout{ID: "2", Name: "Slides"})
	ch.Publishers.Set("1", &Publisher{ID: "1", Name: "YouTube", Status: PublisherStatus{State: StateStarted}})
	ch.Publishers.Set("2", &Publisher{ID: "2", Name: "RTMP"})
	s.Channels.Set("1", ch)
	s.Channels.Set("2", &Channel{ID: "2", Name: "Backup"})
	s.Recorders.Set("1", &Recorder{ID: "1", Name: "Rec A"})
	return s
}

func TestOrderedKeepsInsertionOrder(t *testing.T) {
	var o Ordered[int]
	o.Set("b", 1)
	o.Set("a", 2)
	o.Set("b", 3)

	if got := o.IDs(); !slices.Equal(got, []ID{"b", "a"}) {
		t.Errorf("ids = %v", got)
	}
	if got := o.Values(); !slices.Equal(got, []int{3, 2}) {
		t.Errorf("values = %v", got)
	}
	b, err := json.Marshal(o)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "[3,2]" {
		t.Errorf("json = %s", b)
	}
}

func TestIDAndScalarDecoding(t *testing.T) {
	var v struct {
		A ID     `json:"a"`
		B ID     `json:"b"`
		C Scalar `json:"c"`
		D Scalar `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"a":7,"b":"7","c":true,"d":null}`), &v); err != nil {
		t.Fatal(err)
	}
	if v.A != v.B || v.A != "7" || v.C != "true" || v.D != "" {
		t.Errorf("decoded = %+v", v)
	}
	if _, err := ID("x").Number(); err == nil {
		t.Error("non-numeric id accepted")
	}
}

func TestChoices(t *testing.T) {
	s := sample()

	pubs := ChannelPublisherChoices(s)
	want := []Choice{
		{ID: "1-all", Label: "Main - All Streams"},
		{ID: "1-1", Label: "Main - YouTube"},
		{ID: "1-2", Label: "Main - RTMP"},
	}
	if !slices.Equal(pubs, want) {
		t.Errorf("publisher choices = %+v", pubs)
	}
	if got := ChannelLayoutChoices(s); len(got) != 2 || got[1].Label != "Main - Slides" {
		t.Errorf("layout choices = %+v", got)
	}
	if FirstID(ChannelChoices(s)) != "1" || FirstID(nil) != "" {
		t.Error("FirstID")
	}
	if got := EventChoices(s); got == nil || len(got) != 0 {
		t.Errorf("events without versioned API = %#v", got)
	}
	if got := RecorderChoices(nil); got == nil || len(got) != 0 {
		t.Errorf("nil snapshot choices = %#v", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := sample()
	c := s.Clone()

	ch, _ := c.Channel("1")
	l, _ := ch.Layouts.Get("2")
	l.Active = true
	p, _ := ch.Publishers.Get("1")
	p.Status.State = StateStopped

	orig, _ := s.Channel("1")
	if l, _ := orig.Layouts.Get("2"); l.Active {
		t.Error("layout mutation leaked")
	}
	if p, _ := orig.Publishers.Get("1"); p.Status.State != StateStarted {
		t.Error("publisher mutation leaked")
	}
	if got := s.Counts(); got["layouts"] != 2 || got["publishers"] != 2 || got["channels"] != 2 {
		t.Errorf("counts = %v", got)
	}
}

func TestStore(t *testing.T) {
	st := NewStore()
	if st.Update(func(*Snapshot) { t.Error("called before first swap") }) {
		t.Error("Update reported success on an empty store")
	}

	first := sample()
	if old := st.Swap(first); old != nil {
		t.Errorf("old = %v", old)
	}
	ok := st.Update(func(s *Snapshot) {
		ch, _ := s.Channel("2")
		ch.Name = "Spare"
	})
	if !ok {
		t.Fatal("Update failed")
	}
	if ch, _ := st.Load().Channel("2"); ch.Name != "Spare" {
		t.Errorf("updated name = %q", ch.Name)
	}
	if ch, _ := first.Channel("2"); ch.Name != "Backup" {
		t.Error("published snapshot was mutated")
	}
	if st.Previous() != nil {
		t.Error("Update moved the previous generation")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Update(func(s *Snapshot) { s.Recorders.Set(ID("x"), &Recorder{ID: "x"}) })
			_ = st.Load().Counts()
		}()
	}
	wg.Wait()
	if st.Load().Recorders.Len() != 2 {
		t.Errorf("recorders = %d", st.Load().Recorders.Len())
	}
}
