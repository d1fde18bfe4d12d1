// Package model holds the shared domain types for the weekly visit-route
// service.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Weekday indexes the six working days of the visit week. Sunday does not
// exist in this domain.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday

	NumWeekdays = 6
)

// Weekdays lists the working days in week order.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

var weekdayKeys = [NumWeekdays]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// Key returns the lowercase wire/database key for the day.
func (d Weekday) Key() string {
	if !d.Valid() {
		return fmt.Sprintf("weekday(%d)", int(d))
	}
	return weekdayKeys[d]
}

func (d Weekday) Valid() bool { return d >= Monday && d <= Saturday }

func (d Weekday) String() string { return d.Key() }

// ParseWeekday parses a day key case-insensitively.
func ParseWeekday(s string) (Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, k := range weekdayKeys {
		if k == key {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

func (d Weekday) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid weekday %d", int(d))
	}
	return json.Marshal(d.Key())
}

func (d *Weekday) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	day, err := ParseWeekday(s)
	if err != nil {
		return err
	}
	*d = day
	return nil
}
