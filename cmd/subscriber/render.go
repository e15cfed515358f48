package main

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// clearScreen clears the terminal and moves cursor to top-left (ANSI)
func clearScreen() {
	fmt.Print("\x1b[2J\x1b[H")
}

func Render(ui *InPlaceUI, vm ViewModel, maxRows int) {
	var b bytes.Buffer

	b.WriteString(strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&b, "Feed: %s   Status: %s   Now: %s\n", vm.URL, statusLabel(vm), vm.Now.Format(time.RFC3339))
	b.WriteString(strings.Repeat("-", 80) + "\n")

	if len(vm.Events) == 0 {
		b.WriteString("(waiting for updates...)\n")
	}
	for _, ev := range vm.Events {
		renderEventBlock(&b, ev, maxRows)
		b.WriteString(strings.Repeat("-", 80) + "\n")
	}

	out := b.String()
	if ui != nil {
		_ = ui.Draw(out)
	} else {
		clearScreen()
		fmt.Print(out)
	}
}

func statusLabel(vm ViewModel) string {
	if vm.Exhausted > 0 {
		return fmt.Sprintf("%s (gave up after %d attempts)", vm.Conn, vm.Exhausted)
	}
	return vm.Conn.String()
}

func renderEventBlock(b *bytes.Buffer, ev EventView, maxRows int) {
	title := ev.Title
	if title == "" {
		title = "-"
	}
	fmt.Fprintf(b, "[Event] id=%s title=%s\n", ev.EventID, title)
	fmt.Fprintf(b, "Attending: %d   Joins: %d   Leaves: %d   Updated: %s ago\n",
		len(ev.Attendees), ev.Joins, ev.Leaves, time.Since(ev.UpdatedAt).Truncate(time.Second))

	if len(ev.Attendees) == 0 {
		return
	}

	rows := make([][]string, 0, len(ev.Attendees))
	for i, a := range ev.Attendees {
		if i >= maxRows {
			break
		}
		checkedIn := ""
		if a.CheckedInAt > 0 {
			checkedIn = time.UnixMilli(a.CheckedInAt).Format(time.RFC3339)
		}
		rows = append(rows, []string{a.ID, shortAddress(a.Address), a.Status, a.DisplayName, checkedIn})
	}

	b.WriteString(renderTable([]string{"ID", "ADDRESS", "STATUS", "NAME", "CHECKED IN"}, rows))
	if hidden := len(ev.Attendees) - len(rows); hidden > 0 {
		fmt.Fprintf(b, "... %d more\n", hidden)
	}
}

// shortAddress abbreviates a wallet address to 0x1234…abcd.
func shortAddress(addr string) string {
	if len(addr) <= 13 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// renderTable builds a simple ASCII table using runewidth-aware padding
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, r := range rows {
		for i := range headers {
			cell := ""
			if i < len(r) {
				cell = r[i]
			}
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b bytes.Buffer
	sep := func() {
		b.WriteString("+")
		for _, w := range widths {
			b.WriteString(strings.Repeat("-", w+2))
			b.WriteString("+")
		}
		b.WriteString("\n")
	}
	line := func(cells []string) {
		b.WriteString("|")
		for i := range headers {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(" ")
			b.WriteString(runewidth.FillRight(cell, widths[i]))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	sep()
	line(headers)
	sep()
	for _, r := range rows {
		line(r)
	}
	sep()
	return b.String()
}
