package core

import "testing"

func TestFromFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{0, 0},
		{12.34, 1234},
		{12.345, 1235},  // half up
		{-12.34, -1234},
		{-0.005, -1},    // rounds away from zero
		{1999.99, 199999},
	}
	for _, tt := range tests {
		if got := FromFloat(tt.in).Cents; got != tt.want {
			t.Errorf("FromFloat(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMoney_Units(t *testing.T) {
	tests := []struct {
		cents int64
		want  int64
	}{
		{0, 0},
		{49, 0},
		{50, 1},
		{149, 1},
		{150, 2},
		{-49, 0},
		{-50, -1},
		{-150, -2},
		{123456, 1235},
	}
	for _, tt := range tests {
		if got := (Money{Cents: tt.cents}).Units(); got != tt.want {
			t.Errorf("Units(%d) = %d, want %d", tt.cents, got, tt.want)
		}
	}
}

func TestMoney_String(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{1234, "12.34"},
		{-5, "-0.05"},
		{-123450, "-1234.50"},
	}
	for _, tt := range tests {
		if got := (Money{Cents: tt.cents}).String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestParseFloatToCents(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"12.34", 1234, true},
		{"12,34", 1234, true},
		{"-3.5", -350, true},
		{"0", 0, true},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseFloatToCents(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseFloatToCents(%q) = %d,%v; want %d,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
