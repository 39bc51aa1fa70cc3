package eligibility

import (
	"testing"
	"time"
)

func TestPolicy_InServiceArea(t *testing.T) {
	p := NewPolicy(nil)

	tests := map[string]bool{
		"85004":     true,
		"86001":     true,
		"85999":     true,
		"84101":     false,
		"90210":     false,
		"8500":      false,
		"850041":    false,
		"85-04":     false,
		"8500a":     false,
		"":          false,
		"85004-123": false,
	}
	for zip, want := range tests {
		if got := p.InServiceArea(zip); got != want {
			t.Errorf("InServiceArea(%q): expected %v, got %v", zip, want, got)
		}
	}
}

func TestNewPolicy_CustomPrefixes(t *testing.T) {
	p := NewPolicy([]string{" 89 ", "", "850"})

	if !p.InServiceArea("89101") {
		t.Error("expected 89101 in area")
	}
	if !p.InServiceArea("85012") {
		t.Error("expected 85012 in area")
	}
	if p.InServiceArea("85101") {
		t.Error("expected 85101 out of area for prefix 850")
	}
	if p.InServiceArea("86001") {
		t.Error("expected default prefixes to be replaced")
	}
	if got := p.Prefixes(); len(got) != 2 || got[0] != "89" || got[1] != "850" {
		t.Errorf("unexpected prefixes: %v", got)
	}
}

func TestNewPolicy_BlankFallsBackToDefault(t *testing.T) {
	p := NewPolicy([]string{"", "  "})
	if got := p.Prefixes(); len(got) != 2 || got[0] != "85" || got[1] != "86" {
		t.Errorf("expected default prefixes, got %v", got)
	}
}

func TestIsMinor(t *testing.T) {
	at := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	date := func(y int, m time.Month, d int) *time.Time {
		v := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &v
	}
	age := func(n int) *int { return &n }

	tests := []struct {
		name string
		dob  *time.Time
		age  *int
		want bool
	}{
		{"eighteenth birthday today", date(2008, 3, 15), nil, false},
		{"eighteenth birthday tomorrow", date(2008, 3, 16), nil, true},
		{"seventeen", date(2009, 1, 1), nil, true},
		{"adult", date(1980, 7, 4), nil, false},
		{"stated age minor", nil, age(16), true},
		{"stated age adult", nil, age(18), false},
		{"dob wins over age", date(1990, 1, 1), age(12), false},
		{"dob minor wins over adult age", date(2012, 1, 1), age(30), true},
		{"unknown", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMinor(tt.dob, tt.age, at); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAgeAt_LeapDay(t *testing.T) {
	dob := time.Date(2008, 2, 29, 0, 0, 0, 0, time.UTC)
	if got := AgeAt(dob, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)); got != 17 {
		t.Errorf("expected 17 on Feb 28, got %d", got)
	}
	if got := AgeAt(dob, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)); got != 18 {
		t.Errorf("expected 18 on Mar 1, got %d", got)
	}
}
