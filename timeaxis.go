/*
Copyright © 2019 the nctiff authors.
This file is part of nctiff.

nctiff is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

nctiff is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with nctiff.  If not, see <http://www.gnu.org/licenses/>.
*/

package nctiff

import (
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// referenceLayouts are the accepted formats of the reference date in
// CF time units, e.g. "days since 1970-01-01 00:00:00".
var referenceLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04",
	"2006-01-02 15",
	"2006-01-02",
	"2006-1-2 15:04:05",
	"2006-1-2",
}

// unitSeconds holds the length in seconds of the CF time units.
var unitSeconds = map[string]float64{
	"second": 1, "seconds": 1, "sec": 1, "secs": 1, "s": 1,
	"minute": 60, "minutes": 60, "min": 60, "mins": 60,
	"hour": 3600, "hours": 3600, "hr": 3600, "hrs": 3600, "h": 3600,
	"day": 86400, "days": 86400, "d": 86400,
}

// DecodeTimes converts numeric time values encoded as units
// ("<unit> since <reference date>") in the given calendar to UTC
// times. Only calendars equivalent to the standard Gregorian one are
// supported; an empty calendar is treated as "standard".
func DecodeTimes(vals []float64, units, calendar string) ([]time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(calendar)) {
	case "", "standard", "gregorian", "proleptic_gregorian":
	default:
		return nil, errors.Errorf("unsupported calendar %q", calendar)
	}
	step, ref, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	base := float64(ref.Unix()) + float64(ref.Nanosecond())/1e9
	out := make([]time.Time, len(vals))
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Errorf("invalid time value %g at index %d", v, i)
		}
		total := base + v*step
		sec := math.Floor(total)
		usec := math.Round((total - sec) * 1e6)
		out[i] = time.Unix(int64(sec), int64(usec)*int64(time.Microsecond)).UTC()
	}
	return out, nil
}

// parseTimeUnits parses CF time units into the length of one unit in
// seconds and the reference time.
func parseTimeUnits(units string) (float64, time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, errors.Errorf("invalid time units %q", units)
	}
	step, ok := unitSeconds[strings.ToLower(strings.TrimSpace(parts[0]))]
	if !ok {
		return 0, time.Time{}, errors.Errorf("invalid time unit %q in %q", parts[0], units)
	}
	refStr := strings.TrimSpace(parts[1])
	refStr = strings.TrimSuffix(refStr, " UTC")
	// Fractional seconds such as "00:00:0.0" are common in CF files.
	if i := strings.LastIndex(refStr, "."); i > strings.LastIndex(refStr, ":") && i > 0 {
		refStr = refStr[:i]
	}
	for _, layout := range referenceLayouts {
		if t, err := time.Parse(layout, refStr); err == nil {
			return step, t.UTC(), nil
		}
	}
	// Single-digit seconds, e.g. "1900-01-01 00:00:0".
	if t, err := time.Parse("2006-01-02 15:04:5", refStr); err == nil {
		return step, t.UTC(), nil
	}
	return 0, time.Time{}, errors.Errorf("invalid reference date %q in time units %q", parts[1], units)
}
