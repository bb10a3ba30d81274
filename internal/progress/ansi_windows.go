//go:build windows

package progress

import (
	"os"

	"golang.org/x/sys/windows"
)

// enableANSIOnWindows enables Virtual Terminal processing so the bars
// can use ANSI escape sequences on Windows consoles.
func enableANSIOnWindows(f *os.File) {
	handle := windows.Handle(f.Fd())
	var mode uint32
	if err := windows.GetConsoleMode(handle, &mode); err == nil {
		const enableVirtualTerminalProcessing = 0x0004
		_ = windows.SetConsoleMode(handle, mode|enableVirtualTerminalProcessing)
	}
}
