package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Update types carried on the wire.
const (
	TypeAttendance  = "attendance"
	TypeEventUpdate = "event_update"

	// control frames sent by the broker; never dispatched to listeners
	TypeAck   = "ack"
	TypeError = "error"
)

type Action string

const (
	ActionJoin   Action = "join"
	ActionLeave  Action = "leave"
	ActionUpdate Action = "update"
)

func (a Action) Valid() bool {
	switch a {
	case ActionJoin, ActionLeave, ActionUpdate:
		return true
	}
	return false
}

var (
	ErrUnknownType     = errors.New("unknown update type")
	ErrMissingEventID  = errors.New("missing eventId")
	ErrMissingAttendee = errors.New("missing attendee")
	ErrInvalidAction   = errors.New("invalid action")
	ErrMissingFields   = errors.New("missing fields")
)

// Attendee is the attendance record attached to an attendance update.
type Attendee struct {
	ID          string `json:"id"`
	Address     string `json:"address"`
	Status      string `json:"status"`
	DisplayName string `json:"displayName,omitempty"`
	CheckedInAt int64  `json:"checkedInAt,omitempty"` // unix ms
}

// Update is a single live change pushed from the server.
//
// Type selects which of the remaining fields are meaningful:
//   - "attendance":   EventID, Attendee, Action
//   - "event_update": EventID, Fields (partial event record)
type Update struct {
	Type     string                     `json:"type"`
	EventID  string                     `json:"eventId"`
	Attendee *Attendee                  `json:"attendee,omitempty"`
	Action   Action                     `json:"action,omitempty"`
	Fields   map[string]json.RawMessage `json:"fields,omitempty"`
}

// NewAttendance builds an attendance update.
func NewAttendance(eventID string, a Attendee, action Action) *Update {
	return &Update{
		Type:     TypeAttendance,
		EventID:  eventID,
		Attendee: &a,
		Action:   action,
	}
}

// NewEventUpdate builds an event_update from arbitrary field values.
func NewEventUpdate(eventID string, fields map[string]any) (*Update, error) {
	raw := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", k, err)
		}
		raw[k] = b
	}
	return &Update{Type: TypeEventUpdate, EventID: eventID, Fields: raw}, nil
}

// Validate checks the shape of u for its type.
func (u *Update) Validate() error {
	switch u.Type {
	case TypeAttendance:
		if u.EventID == "" {
			return ErrMissingEventID
		}
		if u.Attendee == nil || u.Attendee.ID == "" {
			return ErrMissingAttendee
		}
		if !u.Action.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidAction, u.Action)
		}
	case TypeEventUpdate:
		if u.EventID == "" {
			return ErrMissingEventID
		}
		if len(u.Fields) == 0 {
			return ErrMissingFields
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, u.Type)
	}
	return nil
}

// DecodeUpdate parses and validates a single frame.
func DecodeUpdate(data []byte) (*Update, error) {
	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	return &u, nil
}

// controlFrame is the broker's ack/error reply shape.
type controlFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// peekControl reports whether data is an ack/error frame.
func peekControl(data []byte) (controlFrame, bool) {
	var cf controlFrame
	if err := json.Unmarshal(data, &cf); err != nil {
		return cf, false
	}
	return cf, cf.Type == TypeAck || cf.Type == TypeError
}
