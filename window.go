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
	"fmt"
	"time"
)

// WindowDateFormat is the layout of the dates given to ParseTimeWindow
// (day/month/year).
const WindowDateFormat = "02/01/2006"

// TimeWindow is a date range used to select timesteps.
// Both ends are exclusive.
type TimeWindow struct {
	Start, End time.Time
}

// ParseTimeWindow parses start and end dates in WindowDateFormat.
// start must not be after end.
func ParseTimeWindow(start, end string) (*TimeWindow, error) {
	s, err := time.Parse(WindowDateFormat, start)
	if err != nil {
		return nil, fmt.Errorf("nctiff: time window start: %v", err)
	}
	e, err := time.Parse(WindowDateFormat, end)
	if err != nil {
		return nil, fmt.Errorf("nctiff: time window end: %v", err)
	}
	w := &TimeWindow{Start: s, End: e}
	if err := w.Check(); err != nil {
		return nil, err
	}
	return w, nil
}

// Check returns an error if the window ends before it starts.
func (w *TimeWindow) Check() error {
	if w != nil && w.End.Before(w.Start) {
		return fmt.Errorf("nctiff: time window end %s is before start %s",
			w.End.Format(WindowDateFormat), w.Start.Format(WindowDateFormat))
	}
	return nil
}

// Contains reports whether t is strictly between the start and end of w.
// A nil window contains every time.
func (w *TimeWindow) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	return t.After(w.Start) && t.Before(w.End)
}

func (w *TimeWindow) String() string {
	if w == nil {
		return "all"
	}
	return fmt.Sprintf("(%s, %s)", w.Start.Format(WindowDateFormat), w.End.Format(WindowDateFormat))
}

// Select returns, in order, the indices of the times that fall inside w.
// Times equal to the start or end of the window are not selected.
// When w is nil every index is selected.
func Select(times []time.Time, w *TimeWindow) []int {
	idx := make([]int, 0, len(times))
	for i, t := range times {
		if w.Contains(t) {
			idx = append(idx, i)
		}
	}
	return idx
}
