package facematch

import "testing"

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Honza", "Honza"},
		{"Jiří", "Jiri"},
		{"café", "cafe"},
		{"naïve", "naive"},
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
	decomposed := "Jir\u030ci\u0301" // "Jiří" in NFD
	composed := "Ji\u0159\u00ed"

	if got := NormalizeLabel(decomposed); got != composed {
		t.Errorf("NormalizeLabel(NFD) = %q, want %q", got, composed)
	}
	if got := NormalizeLabel("  000004 "); got != "000004" {
		t.Errorf("NormalizeLabel should trim, got %q", got)
	}
}

func TestDisplayLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"000004", "000004"},
		{"Jiří", "Jiri"},
		{"王", "?"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := DisplayLabel(tt.input); got != tt.expected {
				t.Errorf("DisplayLabel(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
