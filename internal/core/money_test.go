package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1000", "1000", true},
		{"1000.50", "1000.5", true},
		{"12,34", "12.34", true},
		{"1.234,56", "1234.56", true},
		{"1,234.56", "1234.56", true},
		{" 2.50 ", "2.5", true},
		{"1.5", "1.5", true},
		{"1.234.567,89", "1234567.89", true},
		{"1,234", "", false},
		{"1.234", "", false},
		{"1.005", "", false},
		{"12,345", "", false},
		{"-40", "-40", true},
		{"0", "0", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got)
		}
	}
}

func TestFormatBRL(t *testing.T) {
	cases := map[string]string{
		"0":           "R$ 0.00",
		"12.3":        "R$ 12.30",
		"1234.56":     "R$ 1,234.56",
		"1234567.891": "R$ 1,234,567.89",
		"-600":        "-R$ 600.00",
	}
	for in, want := range cases {
		if got := FormatBRL(decimal.RequireFromString(in)); got != want {
			t.Errorf("FormatBRL(%s) = %q, want %q", in, got, want)
		}
	}
}
