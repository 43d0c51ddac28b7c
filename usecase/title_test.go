package usecase

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "Hello", "Hello"},
		{"empty", "", ""},
		{"exactly sixty", strings.Repeat("a", 60), strings.Repeat("a", 60)},
		{"sixty one", strings.Repeat("b", 61), strings.Repeat("b", 60) + "..."},
		{"multibyte", strings.Repeat("é", 70), strings.Repeat("é", 60) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTitle(tt.in); got != tt.want {
				t.Errorf("DeriveTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeriveTitle_TruncatedLength(t *testing.T) {
	got := DeriveTitle(strings.Repeat("x", 200))
	if n := utf8.RuneCountInString(got); n != TitleMaxLength+3 {
		t.Errorf("Expected %d characters, got %d", TitleMaxLength+3, n)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Expected ellipsis suffix, got %q", got)
	}
}
