// Package hotkey watches for the global stop key combination.
package hotkey

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// DefaultCombo stops a running capture.
const DefaultCombo = "Ctrl+Q"

var ErrUnknownKey = errors.New("unknown key")

// Combo is a parsed key combination with normalized key names.
type Combo struct {
	Keys []string
}

func (c Combo) String() string {
	parts := make([]string, len(c.Keys))
	for i, k := range c.Keys {
		if len(k) == 1 {
			parts[i] = strings.ToUpper(k)
		} else {
			parts[i] = strings.ToUpper(k[:1]) + k[1:]
		}
	}
	return strings.Join(parts, "+")
}

var aliases = map[string]string{
	"control": "ctrl",
	"option":  "alt",
	"win":     "cmd",
	"super":   "cmd",
	"meta":    "cmd",
	"return":  "enter",
	"escape":  "esc",
	"del":     "delete",
	"ins":     "insert",
	"pgup":    "pageup",
	"pgdn":    "pagedown",
}

// useRawcodes also matches Windows virtual key codes against Rawcode. Other
// platforms report native codes there, so they match on Keycode only.
var useRawcodes = runtime.GOOS == "windows"

// Windows virtual key codes, which is what gohook reports as Rawcode there.
var specialKeys = map[string][]uint16{
	"ctrl":      {162, 163}, // VK_LCONTROL, VK_RCONTROL
	"alt":       {164, 165}, // VK_LMENU, VK_RMENU
	"shift":     {160, 161}, // VK_LSHIFT, VK_RSHIFT
	"cmd":       {91, 92},   // VK_LWIN, VK_RWIN
	"space":     {32},
	"enter":     {13},
	"esc":       {27},
	"tab":       {9},
	"backspace": {8},
	"delete":    {46},
	"insert":    {45},
	"home":      {36},
	"end":       {35},
	"pageup":    {33},
	"pagedown":  {34},
	"left":      {37},
	"up":        {38},
	"right":     {39},
	"down":      {40},
}

// rawcodes maps a normalized key name to its virtual key codes.
func rawcodes(key string) []uint16 {
	if codes, ok := specialKeys[key]; ok {
		return codes
	}
	if len(key) == 1 {
		c := key[0]
		switch {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16(c-'a') + 65}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c-'0') + 48}
		}
	}
	var n int
	if _, err := fmt.Sscanf(key, "f%d", &n); err == nil && n >= 1 && n <= 24 && key == fmt.Sprintf("f%d", n) {
		return []uint16{uint16(111 + n)} // VK_F1 = 112
	}
	return nil
}

// Key scan codes gohook reports as Keycode on every platform.
var specialScancodes = map[string][]uint16{
	"ctrl":      {0x001D, 0x0E1D},
	"alt":       {0x0038, 0x0E38},
	"shift":     {0x002A, 0x0036},
	"cmd":       {0x0E5B, 0x0E5C},
	"space":     {0x0039},
	"enter":     {0x001C, 0x0E1C},
	"esc":       {0x0001},
	"tab":       {0x000F},
	"backspace": {0x000E},
	"delete":    {0x0E53},
	"insert":    {0x0E52},
	"home":      {0x0E47},
	"end":       {0x0E4F},
	"pageup":    {0x0E49},
	"pagedown":  {0x0E51},
	"left":      {0xE04B},
	"up":        {0xE048},
	"right":     {0xE04D},
	"down":      {0xE050},
}

// Letters in keyboard row order, as the scan code set lays them out.
var letterRows = []struct {
	first uint16
	keys  string
}{
	{0x0010, "qwertyuiop"},
	{0x001E, "asdfghjkl"},
	{0x002C, "zxcvbnm"},
}

// F1 through F24.
var functionScancodes = []uint16{
	0x003B, 0x003C, 0x003D, 0x003E, 0x003F, 0x0040, 0x0041, 0x0042, 0x0043, 0x0044,
	0x0057, 0x0058,
	0x005B, 0x005C, 0x005D, 0x0063, 0x0064, 0x0065, 0x0066, 0x0067, 0x0068, 0x0069, 0x006A,
	0x0076,
}

// scancodes maps a normalized key name to its gohook Keycode values.
func scancodes(key string) []uint16 {
	if codes, ok := specialScancodes[key]; ok {
		return codes
	}
	if len(key) == 1 {
		c := key[0]
		switch {
		case c >= 'a' && c <= 'z':
			for _, row := range letterRows {
				if i := strings.IndexByte(row.keys, c); i >= 0 {
					return []uint16{row.first + uint16(i)}
				}
			}
		case c == '0':
			return []uint16{0x000B}
		case c >= '1' && c <= '9':
			return []uint16{uint16(c-'1') + 0x0002}
		}
	}
	var n int
	if _, err := fmt.Sscanf(key, "f%d", &n); err == nil && n >= 1 && n <= 24 && key == fmt.Sprintf("f%d", n) {
		return []uint16{functionScancodes[n-1]}
	}
	return nil
}

// ParseCombo reads "Ctrl+Q" style combinations. Names are case-insensitive.
func ParseCombo(s string) (Combo, error) {
	var c Combo
	seen := map[string]bool{}
	for _, part := range strings.Split(strings.ToLower(s), "+") {
		key := strings.TrimSpace(part)
		if key == "" {
			return Combo{}, fmt.Errorf("%w: empty key in %q", ErrUnknownKey, s)
		}
		if alias, ok := aliases[key]; ok {
			key = alias
		}
		if rawcodes(key) == nil {
			return Combo{}, fmt.Errorf("%w: %q in %q", ErrUnknownKey, key, s)
		}
		if !seen[key] {
			seen[key] = true
			c.Keys = append(c.Keys, key)
		}
	}
	return c, nil
}

// keyEvent is the part of a gohook event the matcher looks at.
type keyEvent struct {
	Keycode uint16
	Rawcode uint16
}

func eventOf(ev gohook.Event) keyEvent {
	return keyEvent{Keycode: ev.Keycode, Rawcode: ev.Rawcode}
}

type keyCodes struct {
	scan []uint16
	vk   []uint16
}

// matcher tracks pressed keys and fires once all keys of the combo are
// down.
type matcher struct {
	mu      sync.Mutex
	keys    []keyCodes
	raw     bool
	pressed []bool
}

func newMatcher(c Combo) *matcher {
	m := &matcher{pressed: make([]bool, len(c.Keys)), raw: useRawcodes}
	for _, k := range c.Keys {
		m.keys = append(m.keys, keyCodes{scan: scancodes(k), vk: rawcodes(k)})
	}
	return m
}

func (m *matcher) index(ev keyEvent) int {
	for i, k := range m.keys {
		if ev.Keycode != 0 && contains(k.scan, ev.Keycode) {
			return i
		}
		if m.raw && contains(k.vk, ev.Rawcode) {
			return i
		}
	}
	return -1
}

func contains(codes []uint16, code uint16) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// keyDown reports whether the combination just completed.
func (m *matcher) keyDown(ev keyEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(ev)
	if i < 0 {
		return false
	}
	m.pressed[i] = true
	for _, p := range m.pressed {
		if !p {
			return false
		}
	}
	for j := range m.pressed {
		m.pressed[j] = false
	}
	return true
}

func (m *matcher) keyUp(ev keyEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(ev); i >= 0 {
		m.pressed[i] = false
	}
}

// Listener delivers combo presses until stopped.
type Listener struct {
	combo Combo
	once  sync.Once
	done  chan struct{}
}

// Listen registers a global hook for combo and calls callback on each
// press, from the hook goroutine. The callback must not block.
func Listen(combo string, callback func()) (*Listener, error) {
	c, err := ParseCombo(combo)
	if err != nil {
		return nil, err
	}
	l := &Listener{combo: c, done: make(chan struct{})}
	m := newMatcher(c)

	evChan := gohook.Start()
	if evChan == nil {
		return nil, errors.New("hotkey: gohook.Start returned nil channel")
	}
	log.Printf("Hotkey listener configured for: %s", c)

	go func() {
		defer close(l.done)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()
		for ev := range evChan {
			switch ev.Kind {
			case gohook.KeyDown, gohook.KeyHold:
				if m.keyDown(eventOf(ev)) {
					log.Printf("Hotkey activated: %s", c)
					if callback != nil {
						callback()
					}
				}
			case gohook.KeyUp:
				m.keyUp(eventOf(ev))
			}
		}
		log.Printf("Hotkey event channel closed")
	}()
	return l, nil
}

// Combo returns the parsed combination.
func (l *Listener) Combo() Combo { return l.combo }

// Stop unregisters the hook. Safe to call more than once.
func (l *Listener) Stop() {
	l.once.Do(func() {
		gohook.End()
	})
}
