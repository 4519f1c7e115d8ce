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
	"reflect"
	"testing"
	"time"
)

func TestSelect(t *testing.T) {
	times := []time.Time{date(2005, 1, 1), date(2005, 6, 15), date(2005, 12, 31)}
	for _, test := range []struct {
		name string
		w    *TimeWindow
		want []int
	}{
		{
			name: "boundaries excluded",
			w:    &TimeWindow{Start: date(2005, 1, 1), End: date(2005, 12, 31)},
			want: []int{1},
		},
		{
			name: "wide",
			w:    &TimeWindow{Start: date(2004, 12, 31), End: date(2006, 1, 1)},
			want: []int{0, 1, 2},
		},
		{
			name: "empty",
			w:    &TimeWindow{Start: date(2007, 1, 1), End: date(2008, 1, 1)},
			want: []int{},
		},
		{
			name: "equal ends",
			w:    &TimeWindow{Start: date(2005, 6, 15), End: date(2005, 6, 15)},
			want: []int{},
		},
		{
			name: "no window",
			w:    nil,
			want: []int{0, 1, 2},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			have := Select(times, test.w)
			if !reflect.DeepEqual(have, test.want) {
				t.Errorf("have %v, want %v", have, test.want)
			}
		})
	}
}

func TestParseTimeWindow(t *testing.T) {
	w, err := ParseTimeWindow("01/01/2005", "31/12/2005")
	if err != nil {
		t.Fatal(err)
	}
	if !w.Start.Equal(date(2005, 1, 1)) || !w.End.Equal(date(2005, 12, 31)) {
		t.Errorf("have %v", w)
	}
	if w.String() != "(01/01/2005, 31/12/2005)" {
		t.Errorf("string: have %s", w)
	}

	for _, bad := range [][2]string{
		{"2005-01-01", "31/12/2005"},
		{"01/01/2005", "31/13/2005"},
		{"31/12/2005", "01/01/2005"},
	} {
		if _, err := ParseTimeWindow(bad[0], bad[1]); err == nil {
			t.Errorf("%v: expected an error", bad)
		}
	}
}
