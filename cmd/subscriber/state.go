package main

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"community-realtime/internal/realtime"
)

type eventState struct {
	attendees map[string]realtime.Attendee
	fields    map[string]json.RawMessage

	joins  int
	leaves int

	updatedAt time.Time
}

type AppState struct {
	cfg Config

	mu    sync.Mutex
	dirty bool

	conn      realtime.State
	exhausted int // attempts when the channel gave up, 0 while retrying

	events map[string]*eventState
}

type ViewModel struct {
	Now time.Time

	URL       string
	Conn      realtime.State
	Exhausted int

	Events []EventView
}

type EventView struct {
	EventID string
	Title   string

	Attendees []realtime.Attendee // sorted by id

	Joins  int
	Leaves int

	UpdatedAt time.Time
}

func NewAppState(cfg Config) *AppState {
	return &AppState{
		cfg:    cfg,
		events: make(map[string]*eventState),
	}
}

func (s *AppState) SetConnState(st realtime.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn = st
	if st != realtime.Disconnected {
		s.exhausted = 0
	}
	s.dirty = true
}

func (s *AppState) SetExhausted(attempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exhausted = attempts
	s.dirty = true
}

// Apply folds one update into the state. It is used as the channel listener,
// so it must not keep u: the pointer is shared with other listeners.
func (s *AppState) Apply(u *realtime.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[u.EventID]
	if !ok {
		ev = &eventState{
			attendees: make(map[string]realtime.Attendee),
			fields:    make(map[string]json.RawMessage),
		}
		s.events[u.EventID] = ev
	}

	switch u.Type {
	case realtime.TypeAttendance:
		a := *u.Attendee
		switch u.Action {
		case realtime.ActionJoin:
			ev.joins++
			ev.attendees[a.ID] = a
		case realtime.ActionLeave:
			ev.leaves++
			delete(ev.attendees, a.ID)
		case realtime.ActionUpdate:
			ev.attendees[a.ID] = a
		}
	case realtime.TypeEventUpdate:
		for k, v := range u.Fields {
			ev.fields[k] = v
		}
	}

	ev.updatedAt = time.Now()
	s.dirty = true
}

// Snapshot returns (view, true) if there is anything new to render.
func (s *AppState) Snapshot() (ViewModel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return ViewModel{}, false
	}

	vm := ViewModel{
		Now:       time.Now(),
		URL:       s.cfg.URL,
		Conn:      s.conn,
		Exhausted: s.exhausted,
	}

	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		ev := s.events[id]
		view := EventView{
			EventID:   id,
			Title:     fieldString(ev.fields, "title"),
			Joins:     ev.joins,
			Leaves:    ev.leaves,
			UpdatedAt: ev.updatedAt,
		}
		for _, a := range ev.attendees {
			view.Attendees = append(view.Attendees, a)
		}
		sort.Slice(view.Attendees, func(i, j int) bool {
			return view.Attendees[i].ID < view.Attendees[j].ID
		})
		vm.Events = append(vm.Events, view)
	}

	s.dirty = false
	return vm, true
}

// fieldString returns fields[key] if it holds a JSON string.
func fieldString(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}
