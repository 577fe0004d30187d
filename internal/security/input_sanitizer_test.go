package security

import (
	"strings"
	"testing"
)

func TestSanitizeName_StripsHTML(t *testing.T) {
	s := NewInputSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain name passes through", "山田 太郎", "山田 太郎"},
		{"script tag removed", `<script>alert(1)</script>Alice`, "Alice"},
		{"inline tags removed but text kept", "<b>Bob</b>", "Bob"},
		{"leading and trailing spaces trimmed", "  Alice  ", "Alice"},
		{"consecutive spaces collapsed", "Alice   Smith", "Alice Smith"},
		{"tabs and newlines collapsed", "Alice\t\nSmith", "Alice Smith"},
		{"empty input returns empty", "", ""},
		{"only markup returns empty", "<img src=x onerror=alert(1)>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.SanitizeName(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeName_Idempotent(t *testing.T) {
	s := NewInputSanitizer()

	input := "<b>  Alice   Smith </b>"
	once := s.SanitizeName(input)
	twice := s.SanitizeName(once)
	if once != twice {
		t.Errorf("expected idempotent result, got %q then %q", once, twice)
	}
}

func TestSanitizeDescription_AllowsSafeTags(t *testing.T) {
	s := NewInputSanitizer()

	input := "<p>毎週火曜の<strong>バドミントン</strong>です</p>"
	got := s.SanitizeDescription(input)
	if got != input {
		t.Errorf("SanitizeDescription() = %q, want %q", got, input)
	}
}

func TestSanitizeDescription_RemovesScript(t *testing.T) {
	s := NewInputSanitizer()

	got := s.SanitizeDescription(`<p>hello</p><script>alert(1)</script>`)
	want := "<p>hello</p>"
	if got != want {
		t.Errorf("SanitizeDescription() = %q, want %q", got, want)
	}
}

func TestSanitizeDescription_AddsRelAndTargetToLinks(t *testing.T) {
	s := NewInputSanitizer()

	got := s.SanitizeDescription(`<a href="https://example.com/court">コート案内</a>`)

	if !strings.Contains(got, `target="_blank"`) {
		t.Errorf("expected target=_blank in %q", got)
	}
	if !strings.Contains(got, "noopener") || !strings.Contains(got, "noreferrer") {
		t.Errorf("expected noopener noreferrer rel in %q", got)
	}
}

func TestSanitizeDescription_RemovesEventAttributes(t *testing.T) {
	s := NewInputSanitizer()

	got := s.SanitizeDescription(`<p onclick="alert(1)">hello</p>`)
	want := "<p>hello</p>"
	if got != want {
		t.Errorf("SanitizeDescription() = %q, want %q", got, want)
	}
}

func TestSanitizeDescription_Empty(t *testing.T) {
	s := NewInputSanitizer()

	if got := s.SanitizeDescription(""); got != "" {
		t.Errorf("SanitizeDescription(\"\") = %q, want empty", got)
	}
}
