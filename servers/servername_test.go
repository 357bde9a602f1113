package servers

import (
	"errors"
	"testing"
)

func TestNormalizeServername(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"pt1", "PT#1"},
		{"pt#01-tor", "PT#1-TOR"},
		{"PT#1", "PT#1"},
		{"pt-005", "PT#5"},
		{"se#123", "SE#123"},
		{"is-de01", "IS-DE#1"},
		{"IS-DE#1", "IS-DE#1"},
		{"us-free-03", "US-FREE#3"},
		{"ch-se#2-tor", "CH-SE#2-TOR"},
		{"  nl12  ", "NL#12"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeServername(tt.input)
			if err != nil {
				t.Fatalf("NormalizeServername(%q) error = %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("NormalizeServername(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeServername_Idempotent(t *testing.T) {
	inputs := []string{"pt1", "pt#01-tor", "is-de01", "us-free-03"}

	for _, input := range inputs {
		once, err := NormalizeServername(input)
		if err != nil {
			t.Fatalf("NormalizeServername(%q) error = %v", input, err)
		}
		twice, err := NormalizeServername(once)
		if err != nil {
			t.Fatalf("NormalizeServername(%q) error = %v", once, err)
		}
		if once != twice {
			t.Errorf("normalization not idempotent: %q -> %q -> %q", input, once, twice)
		}
	}
}

func TestNormalizeServername_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"p",
		"pt",
		"pt1234",
		"portugal#1",
		"pt#1x",
		"pt#1-onion",
		"is-deu01",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := NormalizeServername(input)
			if !errors.Is(err, ErrIllegalServername) {
				t.Errorf("NormalizeServername(%q) error = %v, want ErrIllegalServername", input, err)
			}
			if ValidServername(input) {
				t.Errorf("ValidServername(%q) = true, want false", input)
			}
		})
	}
}

func TestValidServername(t *testing.T) {
	if !ValidServername("pt1") {
		t.Error("ValidServername(pt1) = false, want true")
	}
	if !ValidServername("is-de01") {
		t.Error("ValidServername(is-de01) = false, want true")
	}
}
