//go:build !windows

package notification

import (
	"fmt"
	"log"
	"runtime"
)

// ShowBlockingError only logs outside Windows; there is no modal dialog.
func ShowBlockingError(title, message string) {
	log.Printf("%s: %s", title, Truncate(message, maxNoticeRunes))
}

func showWindowsPopup(title, text string) error {
	return fmt.Errorf("notices are not supported on %s", runtime.GOOS)
}
