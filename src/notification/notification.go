package notification

import (
	"log"
	"runtime"
)

const maxNoticeRunes = 200

// ShowCaptureEnded tells the user about an abnormal end of capture and
// returns once the notice is dismissed. Outside Windows it is only logged.
func ShowCaptureEnded(title, message string) {
	message = Truncate(message, maxNoticeRunes)
	if runtime.GOOS != "windows" {
		log.Printf("%s: %s", title, message)
		return
	}
	if err := showWindowsPopup(title, message); err != nil {
		log.Printf("Failed to show notification: %v", err)
	}
}

// Truncate shortens text to maxRunes runes, appending "..." when cut.
func Truncate(text string, maxRunes int) string {
	r := []rune(text)
	if len(r) <= maxRunes {
		return text
	}
	return string(r[:maxRunes]) + "..."
}
