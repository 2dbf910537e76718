package config

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/relvacode/iso8601"

	"github.com/ajitpratap0/nebula-hubspot/pkg/errors"
)

var relativePeriod = regexp.MustCompile(`^(\d+)\s*(minute|hour|day|week|month|year)s?(\s+ago)?$`)

// ParsePeriod resolves a period_from expression to an instant in UTC.
//
// Accepted forms are ISO 8601 dates and datetimes, "now", "today",
// "yesterday" and "<N> <unit>[s] [ago]" with units minute, hour, day,
// week, month and year. Day based expressions resolve to midnight UTC.
// A nil clock uses the wall clock.
func ParsePeriod(expr string, clock clockwork.Clock) (time.Time, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := strings.ToLower(strings.TrimSpace(expr))
	now := clock.Now().UTC()

	switch s {
	case "":
		return time.Time{}, errors.New(errors.ErrorTypeConfig, "period_from is empty")
	case "now":
		return now, nil
	case "today":
		return midnight(now), nil
	case "yesterday":
		return midnight(now).AddDate(0, 0, -1), nil
	}

	if m := relativePeriod.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid period_from").WithDetail("value", expr)
		}
		switch m[2] {
		case "minute":
			return now.Add(-time.Duration(n) * time.Minute), nil
		case "hour":
			return now.Add(-time.Duration(n) * time.Hour), nil
		case "day":
			return midnight(now).AddDate(0, 0, -n), nil
		case "week":
			return midnight(now).AddDate(0, 0, -7*n), nil
		case "month":
			return midnight(now).AddDate(0, -n, 0), nil
		default:
			return midnight(now).AddDate(-n, 0, 0), nil
		}
	}

	t, err := iso8601.ParseString(strings.TrimSpace(expr))
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid period_from").WithDetail("value", expr)
	}
	return t.UTC(), nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EpochMillis converts t to milliseconds since the Unix epoch, the unit of
// the API's "since" filter
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
