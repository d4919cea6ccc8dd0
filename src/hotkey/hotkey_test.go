package hotkey

import (
	"errors"
	"testing"
)

func TestRawcodes(t *testing.T) {
	tests := []struct {
		key      string
		expected []uint16
	}{
		{"ctrl", []uint16{162, 163}},
		{"alt", []uint16{164, 165}},
		{"shift", []uint16{160, 161}},
		{"cmd", []uint16{91, 92}},
		{"q", []uint16{81}},
		{"a", []uint16{65}},
		{"z", []uint16{90}},
		{"0", []uint16{48}},
		{"9", []uint16{57}},
		{"f1", []uint16{112}},
		{"f12", []uint16{123}},
		{"f24", []uint16{135}},
		{"space", []uint16{32}},
		{"esc", []uint16{27}},
		{"f25", nil},
		{"f01", nil},
		{"unknown", nil},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := rawcodes(tt.key)
			if len(got) != len(tt.expected) {
				t.Fatalf("rawcodes(%q) = %v, want %v", tt.key, got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Fatalf("rawcodes(%q) = %v, want %v", tt.key, got, tt.expected)
				}
			}
		})
	}
}

func TestParseCombo(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ctrl+Q", "Ctrl+Q"},
		{"ctrl + q", "Ctrl+Q"},
		{"Control+Shift+F5", "Ctrl+Shift+F5"},
		{"Super+Escape", "Cmd+Esc"},
		{"ctrl+ctrl+q", "Ctrl+Q"},
	}
	for _, tt := range tests {
		c, err := ParseCombo(tt.in)
		if err != nil {
			t.Errorf("ParseCombo(%q): %v", tt.in, err)
			continue
		}
		if c.String() != tt.want {
			t.Errorf("ParseCombo(%q) = %s, want %s", tt.in, c, tt.want)
		}
	}

	for _, bad := range []string{"", "Ctrl+", "Ctrl+Hyper", "Ctrl++Q"} {
		if _, err := ParseCombo(bad); !errors.Is(err, ErrUnknownKey) {
			t.Errorf("ParseCombo(%q) expected ErrUnknownKey, got %v", bad, err)
		}
	}
}

func vk(code uint16) keyEvent { return keyEvent{Rawcode: code} }
func scan(code uint16) keyEvent { return keyEvent{Keycode: code} }

func TestMatcher(t *testing.T) {
	c, err := ParseCombo(DefaultCombo)
	if err != nil {
		t.Fatal(err)
	}
	m := newMatcher(c)
	m.raw = true

	if m.keyDown(vk(81)) {
		t.Fatal("Q alone must not fire")
	}
	m.keyUp(vk(81))
	if m.keyDown(vk(163)) { // right ctrl
		t.Fatal("Ctrl alone must not fire")
	}
	if !m.keyDown(vk(81)) {
		t.Fatal("Ctrl then Q should fire")
	}
	// State resets after firing; holding Ctrl and pressing Q again needs Ctrl again.
	if m.keyDown(vk(81)) {
		t.Fatal("fired without Ctrl after reset")
	}
	if m.keyDown(vk(65)) {
		t.Fatal("unrelated key fired")
	}
}

func TestScancodes(t *testing.T) {
	tests := []struct {
		key      string
		expected []uint16
	}{
		{"ctrl", []uint16{0x1D, 0x0E1D}},
		{"q", []uint16{0x10}},
		{"p", []uint16{0x19}},
		{"a", []uint16{0x1E}},
		{"l", []uint16{0x26}},
		{"z", []uint16{0x2C}},
		{"m", []uint16{0x32}},
		{"1", []uint16{0x02}},
		{"9", []uint16{0x0A}},
		{"0", []uint16{0x0B}},
		{"f1", []uint16{0x3B}},
		{"f10", []uint16{0x44}},
		{"f11", []uint16{0x57}},
		{"f24", []uint16{0x76}},
		{"f25", nil},
		{"unknown", nil},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := scancodes(tt.key)
			if len(got) != len(tt.expected) {
				t.Fatalf("scancodes(%q) = %v, want %v", tt.key, got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Fatalf("scancodes(%q) = %v, want %v", tt.key, got, tt.expected)
				}
			}
		})
	}
}

func TestEveryKeyHasScancode(t *testing.T) {
	for key := range specialKeys {
		if scancodes(key) == nil {
			t.Errorf("%q has a virtual key code but no scan code", key)
		}
	}
	for c := 'a'; c <= 'z'; c++ {
		if scancodes(string(c)) == nil {
			t.Errorf("%q has no scan code", c)
		}
	}
}

func TestMatcherWithoutRawcodes(t *testing.T) {
	tests := []struct {
		name   string
		events []keyEvent
		fires  bool
	}{
		{"left ctrl then q", []keyEvent{scan(0x1D), scan(0x10)}, true},
		{"right ctrl then q", []keyEvent{scan(0x0E1D), scan(0x10)}, true},
		{"ctrl then w", []keyEvent{scan(0x1D), scan(0x11)}, false},
		// Native codes in Rawcode must not be read as Windows key codes.
		{"virtual key codes only", []keyEvent{vk(162), vk(81)}, false},
		{"typed event without keycode", []keyEvent{scan(0x1D), {Rawcode: 81}}, false},
	}
	c, err := ParseCombo(DefaultCombo)
	if err != nil {
		t.Fatal(err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMatcher(c)
			m.raw = false
			fired := false
			for _, ev := range tt.events {
				fired = m.keyDown(ev)
			}
			if fired != tt.fires {
				t.Fatalf("fired = %v, want %v", fired, tt.fires)
			}
		})
	}
}
