package pulse

import (
	"errors"
	"strings"
	"testing"
)

// wrap encodes content the way the rich-text editor stores it.
func wrap(content string) *string {
	s := "<p>" + content + "</p>"
	return &s
}

func strPtr(s string) *string {
	return &s
}

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"paragraph", "<p>Login fails</p>", "Login fails", true},
		{"empty paragraph", "<p></p>", "", true},
		{"exactly wrapper length", "abcdefg", "", true},
		{"too short", "<p>/p", "", false},
		{"empty", "", "", false},
		{"multibyte content", "<p>Größe</p>", "Größe", true},
		{"astral content", "<p>😀😀</p>", "😀😀", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Unwrap(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("Unwrap(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Unwrap(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMeaningful(t *testing.T) {
	tests := []struct {
		name string
		raw  *string
		want bool
	}{
		{"three chars", wrap("abc"), true},
		{"two chars", wrap("ab"), false},
		{"empty paragraph", wrap(""), false},
		{"short raw", strPtr("abc"), false},
		{"long text", wrap("Customer cannot post invoices"), true},
		{"two emoji are four units", wrap("😀😀"), true},
		{"one emoji is two units", wrap("😀"), false},
		{"three accented letters", wrap("äöü"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Meaningful(tt.raw)
			if err != nil {
				t.Fatalf("Meaningful() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Meaningful(%q) = %v, want %v", *tt.raw, got, tt.want)
			}
		})
	}
}

func TestMeaningful_Absent(t *testing.T) {
	got, err := Meaningful(nil)
	if !errors.Is(err, ErrFieldAbsent) {
		t.Fatalf("Meaningful(nil) error = %v, want ErrFieldAbsent", err)
	}
	if got {
		t.Errorf("Meaningful(nil) = true, want false")
	}
}

// Raw values up to 9 characters leave at most 2 characters once the 3+4
// wrapper is removed, so they never count.
func TestMeaningful_ShortValuesNeverCount(t *testing.T) {
	for n := 0; n <= 9; n++ {
		raw := strings.Repeat("x", n)
		got, err := Meaningful(&raw)
		if err != nil {
			t.Fatalf("Meaningful(len %d) error = %v", n, err)
		}
		if got {
			t.Errorf("Meaningful(len %d) = true, want false", n)
		}
		if content, _ := Unwrap(raw); len(content) > 2 {
			t.Errorf("Unwrap(len %d) length = %d, want <= 2", n, len(content))
		}
	}

	raw := strings.Repeat("x", 10)
	if got, _ := Meaningful(&raw); !got {
		t.Errorf("Meaningful(len 10) = false, want true")
	}
}
