package schedule

import (
	"fmt"
	"strings"
)

// UnknownDayFlagError reports a schedule flag code outside the allow-list.
type UnknownDayFlagError struct {
	Code string
}

func (e *UnknownDayFlagError) Error() string {
	return fmt.Sprintf("unrecognized schedule flag code %q", e.Code)
}

// ParseFlag normalizes the single-character codes the schedule sources use
// into a strict boolean. Only allow-listed codes are accepted; anything else
// is an UnknownDayFlagError, never a silent false.
func ParseFlag(code string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "S", "X", "1":
		return true, nil
	case "N", "0", "":
		return false, nil
	}
	return false, &UnknownDayFlagError{Code: code}
}
