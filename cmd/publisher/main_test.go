package main

import (
	"testing"

	"community-realtime/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldFlags(t *testing.T) {
	f := fieldFlags{}
	require.NoError(t, f.Set("title=Moved to room 4"))
	require.NoError(t, f.Set("note=a=b"))
	assert.Equal(t, "Moved to room 4", f["title"])
	assert.Equal(t, "a=b", f["note"])

	assert.Error(t, f.Set("novalue"))
	assert.Error(t, f.Set("=x"))
}

func TestBuildUpdate_Attendance(t *testing.T) {
	u, err := buildUpdate(realtime.TypeAttendance, "e1", realtime.ActionUpdate,
		realtime.Attendee{ID: "a1", Status: "checked_in"}, nil)
	require.NoError(t, err)
	assert.Equal(t, realtime.ActionUpdate, u.Action)
	assert.NotZero(t, u.Attendee.CheckedInAt)

	_, err = buildUpdate(realtime.TypeAttendance, "e1", realtime.ActionJoin, realtime.Attendee{}, nil)
	assert.ErrorIs(t, err, realtime.ErrMissingAttendee)
}

func TestBuildUpdate_EventFields(t *testing.T) {
	u, err := buildUpdate(realtime.TypeEventUpdate, "e1", "", realtime.Attendee{},
		fieldFlags{"title": "Demo day", "capacity": "40", "open": "true"})
	require.NoError(t, err)

	assert.JSONEq(t, `"Demo day"`, string(u.Fields["title"]))
	assert.JSONEq(t, `40`, string(u.Fields["capacity"]))
	assert.JSONEq(t, `true`, string(u.Fields["open"]))

	_, err = buildUpdate(realtime.TypeEventUpdate, "e1", "", realtime.Attendee{}, fieldFlags{})
	assert.ErrorIs(t, err, realtime.ErrMissingFields)
}

func TestBuildUpdate_UnknownType(t *testing.T) {
	_, err := buildUpdate("poll", "e1", "", realtime.Attendee{}, nil)
	assert.ErrorContains(t, err, "unknown -type")
}
