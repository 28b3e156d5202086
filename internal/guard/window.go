package guard

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// window is a parsed trading-window specification: an optional day-of-week
// range plus a local start/end time.
type window struct {
	days       [7]bool // indexed by time.Weekday
	startMin   int     // minutes since local midnight, inclusive
	endMin     int     // inclusive
}

var dayNames = map[string]time.Weekday{
	"SUN": time.Sunday,
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
}

// parseWindow parses specs of the form "09:30-16:00" or "Mon-Fri 09:30-16:00".
// An empty spec returns (nil, nil): no restriction.
func parseWindow(spec string) (*window, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	w := &window{}
	for i := range w.days {
		w.days[i] = true
	}

	timePart := spec
	if fields := strings.Fields(spec); len(fields) == 2 {
		if err := parseDayRange(fields[0], &w.days); err != nil {
			return nil, err
		}
		timePart = fields[1]
	} else if len(fields) != 1 {
		return nil, fmt.Errorf("malformed window spec %q", spec)
	}

	startStr, endStr, ok := strings.Cut(timePart, "-")
	if !ok {
		return nil, fmt.Errorf("malformed window time range %q", timePart)
	}
	var err error
	if w.startMin, err = parseClock(startStr); err != nil {
		return nil, err
	}
	if w.endMin, err = parseClock(endStr); err != nil {
		return nil, err
	}
	return w, nil
}

func parseDayRange(s string, days *[7]bool) error {
	from, to, ok := strings.Cut(strings.ToUpper(s), "-")
	if !ok {
		d, found := dayNames[strings.ToUpper(s)]
		if !found {
			return fmt.Errorf("unknown day %q", s)
		}
		for i := range days {
			days[i] = false
		}
		days[d] = true
		return nil
	}

	start, okFrom := dayNames[from]
	end, okTo := dayNames[to]
	if !okFrom || !okTo {
		return fmt.Errorf("unknown day range %q", s)
	}

	for i := range days {
		days[i] = false
	}
	for d := start; ; d = (d + 1) % 7 {
		days[d] = true
		if d == end {
			break
		}
	}
	return nil
}

func parseClock(s string) (int, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("malformed clock time %q", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("malformed hour in %q", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("malformed minute in %q", s)
	}
	return h*60 + m, nil
}

func (w *window) contains(local time.Time) bool {
	if !w.days[local.Weekday()] {
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= w.startMin && minutes <= w.endMin
}
