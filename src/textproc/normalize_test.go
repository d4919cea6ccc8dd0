package textproc

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Empty", "", ""},
		{"Whitespace", " \t\n ", ""},
		{"Trim", "  Hello world  ", "Hello world"},
		{"CollapseRuns", "Hello \n\n  world\tagain", "Hello world again"},
		{"IsolatedPunctuation", "Hello ~ | world ..", "Hello world"},
		{"ArtifactCharacters", "Hel§lo wo®rld", "Hello world"},
		{"KeepsInlinePunctuation", "It's 5:30 - go!", "It's 5:30 go!"},
		{"PureNoise", "|| -- ,. ~~", ""},
		{"TooFewAlnum", "a . b", ""},
		{"ThresholdExactlyMet", "ab c", "ab c"},
		{"Unicode", "  Ça   va?  ", "Ça va?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"Hello wor",
		"   Hello world ~~ ",
		"|| -- ,. ~~",
		"a . b",
		"Привет,   мир! — ok",
		"x\x00y\x7fz 123",
		"“quoted” «text» ©",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo world", 5); got != "héllo..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("x", 0); got != "" {
		t.Errorf("Truncate = %q", got)
	}
}

func TestCountWords(t *testing.T) {
	if n := CountWords(" one two  three "); n != 3 {
		t.Errorf("CountWords = %d, want 3", n)
	}
}
