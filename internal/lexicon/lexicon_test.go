package lexicon

import (
	"strings"
	"testing"
)

func TestMatch_SingleWord(t *testing.T) {
	l := New("en", []string{"badword", "offensive"})

	tests := []struct {
		name    string
		input   string
		matched bool
		term    string
	}{
		{"exact match", "badword", true, "badword"},
		{"in sentence", "this is badword here", true, "badword"},
		{"case insensitive", "BADWORD", true, "badword"},
		{"mixed case", "BaDwOrD", true, "badword"},
		{"with punctuation", "hello, badword!", true, "badword"},
		{"in quotes", `he said "offensive"`, true, "offensive"},
		{"clean message", "hello world", false, ""},
		{"partial match no block", "badwording is fine", false, ""},
		{"substring no block", "mybadword", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term, ok := l.Match(tt.input)
			if ok != tt.matched {
				t.Errorf("Match(%q) matched = %v, want %v", tt.input, ok, tt.matched)
			}
			if tt.matched && term != tt.term {
				t.Errorf("Match(%q) term = %q, want %q", tt.input, term, tt.term)
			}
		})
	}
}

func TestMatch_Phrase(t *testing.T) {
	l := New("en", []string{"kill yourself", "go die"})

	tests := []struct {
		name    string
		input   string
		matched bool
		term    string
	}{
		{"exact phrase", "kill yourself", true, "kill yourself"},
		{"phrase in sentence", "you should kill yourself now", true, "kill yourself"},
		{"case insensitive phrase", "KILL YOURSELF", true, "kill yourself"},
		{"extra whitespace", "kill   yourself", true, "kill yourself"},
		{"partial word no match", "kill yourselves", false, ""},
		{"words separated", "kill and yourself", false, ""},
		{"go die phrase", "go die already", true, "go die"},
		{"clean message", "i love this movie", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term, ok := l.Match(tt.input)
			if ok != tt.matched {
				t.Errorf("Match(%q) matched = %v, want %v", tt.input, ok, tt.matched)
			}
			if tt.matched && term != tt.term {
				t.Errorf("Match(%q) term = %q, want %q", tt.input, term, tt.term)
			}
		})
	}
}

func TestMatch_Leetspeak(t *testing.T) {
	l := New("en", []string{"badword", "offensive"})

	tests := []struct {
		name    string
		input   string
		matched bool
	}{
		{"zero for o", "b@dw0rd", true},
		{"at for a", "b@dword", true},
		{"dollar for s", "off3n$ive", true},
		{"one for i", "offens1ve", true},
		{"exclaim for i", "offens!ve", true},
		{"mixed leet", "0ff3n$!v3", true},
		{"leet with trailing bang", "such a b@dw0rd!", true},
		{"numbers alone", "I rated it 10/10", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := l.Match(tt.input)
			if ok != tt.matched {
				t.Errorf("Match(%q) matched = %v, want %v", tt.input, ok, tt.matched)
			}
		})
	}
}

func TestMatch_Accents(t *testing.T) {
	l := New("pt-BR", []string{"otário", "foda-se"})

	if _, ok := l.Match("Que otário, hein"); !ok {
		t.Error("expected accented term to match")
	}
	if _, ok := l.Match("foda-se esse final"); !ok {
		t.Error("expected hyphenated term to match")
	}
	if _, ok := l.Match("otários"); ok {
		t.Error("plural should not match the singular term")
	}
}

func TestNew_EmptyAndWhitespace(t *testing.T) {
	l := New("en", []string{"", "  ", "valid", "VALID"})

	if _, ok := l.words["valid"]; !ok {
		t.Error("expected 'valid' in words set")
	}
	if l.Len() != 1 {
		t.Errorf("expected 1 term, got %d", l.Len())
	}
}

func TestMatch_NilAndEmpty(t *testing.T) {
	var l *Lexicon
	if _, ok := l.Match("anything"); ok {
		t.Error("nil lexicon must not match")
	}
	if _, ok := New("en", nil).Match("anything"); ok {
		t.Error("empty lexicon must not match")
	}
}

func TestNormalizeLeet(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello", "hello"},
		{"h3ll0", "hello"},
		{"@ss", "ass"},
		{"$h!t", "shit"},
		{"upper", "upper"},
		{"n0", "no"},
		{"ch@ng3", "change"},
	}

	for _, tt := range tests {
		got := normalizeLeet(tt.input)
		if got != tt.want {
			t.Errorf("normalizeLeet(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTokenizeLeet(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"hello world", []string{"hello", "world"}},
		{"b@dw0rd", []string{"b@dw0rd"}},
		{"hello $h!t bye", []string{"hello", "$h!t", "bye"}},
	}

	for _, tt := range tests {
		got := tokenizeLeet(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("tokenizeLeet(%q) = %v (len %d), want %v (len %d)", tt.input, got, len(got), tt.want, len(tt.want))
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("tokenizeLeet(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
			}
		}
	}
}

// BenchmarkMatch measures lexicon performance on a clean comment.
func BenchmarkMatch(b *testing.B) {
	set, err := Default("en")
	if err != nil {
		b.Fatal(err)
	}
	l := set.For("en")
	msg := "Loved the cinematography in the second season, the finale was a perfect ending."

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Match(msg)
	}
}

// BenchmarkMatch_LongComment measures performance on a comment near the length limit.
func BenchmarkMatch_LongComment(b *testing.B) {
	set, err := Default("en")
	if err != nil {
		b.Fatal(err)
	}
	l := set.For("en")
	msg := strings.Repeat("this is a perfectly normal review with no bad content. ", 35)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Match(msg)
	}
}
