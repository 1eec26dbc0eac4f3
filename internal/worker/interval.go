package worker

import (
	"regexp"
	"strconv"
	"time"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
)

var intervalRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s?(s|m|h|d)$`)

// ParseInterval parses human interval strings: "30s", "5m", "1.5h",
// "1d". Unitless, negative or malformed values are rejected; the runner
// treats that as fatal at start.
func ParseInterval(s string) (time.Duration, error) {
	m := intervalRe.FindStringSubmatch(s)
	if m == nil {
		return 0, errs.Newf(errs.CodeInvalidArgument, "invalid interval %q (want e.g. \"30s\", \"5m\", \"1.5h\", \"1d\")", s)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, errs.Newf(errs.CodeInvalidArgument, "invalid interval %q", s)
	}
	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	d := time.Duration(n * float64(unit))
	if d <= 0 {
		return 0, errs.Newf(errs.CodeInvalidArgument, "interval %q must be positive", s)
	}
	return d, nil
}
