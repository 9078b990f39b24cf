package osimport

import (
	"strings"
	"time"
)

// ParseDateTime reads a "dd/mm/yyyy" date and optional "HH:MM" time in loc
func ParseDateTime(date, clock string, loc *time.Location) (time.Time, bool) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	layout, value := "02/01/2006", date
	if clock = strings.TrimSpace(clock); clock != "" {
		layout, value = "02/01/2006 15:04", date+" "+clock
	}

	t, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
