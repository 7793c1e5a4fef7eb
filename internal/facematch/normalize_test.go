package facematch

import (
	"reflect"
	"testing"
)

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Honza", "Honza"},
		{"Jiří", "Jiri"},
		{"café", "cafe"},
		{"Žluťoučký kůň", "Zlutoucky kun"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := RemoveDiacritics(tt.input)
			if result != tt.expected {
				t.Errorf("RemoveDiacritics(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Alice", "alice"},
		{"  Alice  ", "alice"},
		{"Mary  Jane", "mary jane"},
		{"STRASSE", "strasse"},
		{"Straße", "strasse"},
		{"Jiří", "jiří"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizeLabel(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeLabel(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizePersonName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jan Novák", "jan novak"},
		{"jan-novak", "jan novak"},
		{"JOHN DOE", "john doe"},
		{"jan-novák", "jan novak"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizePersonName(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizePersonName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestMergeHints(t *testing.T) {
	got := MergeHints([]string{"Jan Novák", " ", "Eva"}, []string{"jan-novak", "Petr"})
	want := []string{"Jan Novák", "Eva", "Petr"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeHints() = %v, want %v", got, want)
	}

	if got := MergeHints(); got != nil {
		t.Errorf("MergeHints() with no input = %v, want nil", got)
	}
}
