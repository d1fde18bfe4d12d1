package model

import "testing"

func TestParseWeekday(t *testing.T) {
	for i, key := range []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday"} {
		d, err := ParseWeekday(key)
		if err != nil {
			t.Fatalf("ParseWeekday(%q): %v", key, err)
		}
		if int(d) != i {
			t.Fatalf("ParseWeekday(%q) = %d, want %d", key, d, i)
		}
	}
	if d, err := ParseWeekday(" Friday "); err != nil || d != Friday {
		t.Fatalf("case-insensitive parse: %v, %v", d, err)
	}
	for _, bad := range []string{"sunday", "mon", ""} {
		if _, err := ParseWeekday(bad); err == nil {
			t.Fatalf("ParseWeekday(%q): expected error", bad)
		}
	}
}

func TestWeekdayValid(t *testing.T) {
	if !Monday.Valid() || !Saturday.Valid() {
		t.Fatalf("bounds should be valid")
	}
	if Weekday(-1).Valid() || Weekday(6).Valid() {
		t.Fatalf("out-of-range days should be invalid")
	}
	if len(Weekdays) != NumWeekdays {
		t.Fatalf("Weekdays has %d entries", len(Weekdays))
	}
}
