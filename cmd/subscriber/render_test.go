package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"community-realtime/internal/realtime"

	"github.com/stretchr/testify/assert"
)

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0x1234", shortAddress("0x1234"))
	assert.Equal(t, "0xabc0…0def", shortAddress("0xabc0000000000000000000000000000000000def"))
}

func TestRenderTable_PadsWideRunes(t *testing.T) {
	out := renderTable([]string{"ID", "NAME"}, [][]string{{"a1", "東京"}, {"a22", "x"}})
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")

	assert.Equal(t, []string{
		"+-----+------+",
		"| ID  | NAME |",
		"+-----+------+",
		"| a1  | 東京 |",
		"| a22 | x    |",
		"+-----+------+",
	}, lines)
}

func TestRenderEventBlock_LimitsRows(t *testing.T) {
	ev := EventView{
		EventID:   "e1",
		Title:     "Launch",
		UpdatedAt: time.Now(),
		Attendees: []realtime.Attendee{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	}

	var b bytes.Buffer
	renderEventBlock(&b, ev, 2)
	out := b.String()

	assert.Contains(t, out, "[Event] id=e1 title=Launch")
	assert.Contains(t, out, "Attending: 3")
	assert.Contains(t, out, "| a ")
	assert.NotContains(t, out, "| c ")
	assert.Contains(t, out, "... 1 more")
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "connected", statusLabel(ViewModel{Conn: realtime.Connected}))
}
