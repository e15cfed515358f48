package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
)

const (
	altScreenOn  = "\x1b[?1049h"
	altScreenOff = "\x1b[?1049l"
	cursorHide   = "\x1b[?25l"
	cursorShow   = "\x1b[?25h"
	cursorHome   = "\x1b[H"
	clearAll     = "\x1b[2J"
	clearBelow   = "\x1b[0J"
)

// InPlaceUI redraws the whole block from the top-left on every frame, on the
// alternate screen so the attendee table never pollutes scrollback.
type InPlaceUI struct {
	out     *bufio.Writer
	restore func()
}

func NewInPlaceUI(f *os.File) (*InPlaceUI, error) {
	restore, err := enableANSI(f)
	if err != nil {
		// terminal may still understand ANSI
		log.Printf("warning: enable ANSI on console failed: %v", err)
	}

	ui := &InPlaceUI{out: bufio.NewWriterSize(f, 1<<16), restore: restore}
	fmt.Fprint(ui.out, altScreenOn+clearAll+cursorHome+cursorHide)
	if err := ui.out.Flush(); err != nil {
		restore()
		return nil, err
	}
	return ui, nil
}

func (ui *InPlaceUI) Close() {
	fmt.Fprint(ui.out, cursorShow+altScreenOff)
	_ = ui.out.Flush()
	ui.restore()
}

func (ui *InPlaceUI) Draw(block string) error {
	fmt.Fprint(ui.out, cursorHome+clearBelow)
	fmt.Fprint(ui.out, block)
	return ui.out.Flush()
}
