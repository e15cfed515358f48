//go:build windows

package main

import (
	"os"

	"golang.org/x/sys/windows"
)

// enableANSI turns on VT processing for the console behind f. restore puts
// the previous console mode back.
func enableANSI(f *os.File) (restore func(), err error) {
	h := windows.Handle(f.Fd())
	var prev uint32
	if err := windows.GetConsoleMode(h, &prev); err != nil {
		return func() {}, err
	}
	if prev&windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING != 0 {
		return func() {}, nil
	}
	if err := windows.SetConsoleMode(h, prev|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING); err != nil {
		return func() {}, err
	}
	return func() { _ = windows.SetConsoleMode(h, prev) }, nil
}
