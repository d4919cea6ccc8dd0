//go:build windows

package notification

import (
	"log"

	"golang.org/x/sys/windows"
)

const (
	mbOK          = 0x00000000
	mbIconWarning = 0x00000030
	mbIconError   = 0x00000010
	mbTopmost     = 0x00040000
)

// ShowBlockingError shows a modal error box and returns when it is closed.
func ShowBlockingError(title, message string) {
	if err := messageBox(title, message, mbOK|mbIconError|mbTopmost); err != nil {
		log.Printf("%s: %s", title, message)
	}
}

func showWindowsPopup(title, text string) error {
	return messageBox(title, text, mbOK|mbIconWarning|mbTopmost)
}

func messageBox(title, text string, flags uint32) error {
	t, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return err
	}
	m, err := windows.UTF16PtrFromString(text)
	if err != nil {
		return err
	}
	_, err = windows.MessageBox(0, m, t, flags)
	return err
}
