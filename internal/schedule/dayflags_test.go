package schedule

import (
	"errors"
	"testing"
)

func TestParseFlag(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"S", true},
		{"s", true},
		{"X", true},
		{"1", true},
		{"N", false},
		{"n", false},
		{"0", false},
		{"", false},
		{" S ", true},
	}
	for _, c := range cases {
		got, err := ParseFlag(c.code)
		if err != nil {
			t.Fatalf("ParseFlag(%q): unexpected error %v", c.code, err)
		}
		if got != c.want {
			t.Fatalf("ParseFlag(%q) = %v, want %v", c.code, got, c.want)
		}
	}
}

func TestParseFlagRejectsUnknownCodes(t *testing.T) {
	for _, code := range []string{"Y", "2", "??", "SN"} {
		_, err := ParseFlag(code)
		if err == nil {
			t.Fatalf("ParseFlag(%q): expected error", code)
		}
		var ue *UnknownDayFlagError
		if !errors.As(err, &ue) {
			t.Fatalf("ParseFlag(%q): error %v is not UnknownDayFlagError", code, err)
		}
		if ue.Code != code {
			t.Fatalf("error carries code %q, want %q", ue.Code, code)
		}
	}
}
