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
	"testing"

	"github.com/ctessum/sparse"
)

func TestParseDataType(t *testing.T) {
	for s, want := range map[string]DataType{
		"int16":       Int16,
		"Int16":       Int16,
		"GDT_Float32": Float32,
		" byte ":      Byte,
		"uint32":      UInt32,
	} {
		have, err := ParseDataType(s)
		if err != nil {
			t.Errorf("%q: %v", s, err)
			continue
		}
		if have != want {
			t.Errorf("%q: have %v, want %v", s, have, want)
		}
	}
	for _, s := range []string{"", "int8", "CInt16"} {
		if _, err := ParseDataType(s); err == nil {
			t.Errorf("%q: expected an error", s)
		}
	}
}

func TestDataTypeConvert(t *testing.T) {
	for _, test := range []struct {
		t       DataType
		in, out float64
	}{
		{Byte, -3, 0},
		{Byte, 300, 255},
		{UInt16, 12.5, 13},
		{Int32, -7.4, -7},
		{Float32, 1.25, 1.25},
		{Float64, 1e300, 1e300},
	} {
		if have := test.t.convert(test.in); have != test.out {
			t.Errorf("%v(%g): have %g, want %g", test.t, test.in, have, test.out)
		}
	}
}

func TestSummarize(t *testing.T) {
	a := sparse.ZerosDense(2, 3)
	copy(a.Elements, []float64{1, 2, math.NaN(), 3, math.NaN(), 6})
	s := Summarize(a)
	if s.Valid != 4 || s.Missing != 2 {
		t.Errorf("counts: have %d valid, %d missing", s.Valid, s.Missing)
	}
	if s.Min != 1 || s.Max != 6 || s.Mean != 3 {
		t.Errorf("have min %g, max %g, mean %g", s.Min, s.Max, s.Mean)
	}
	if math.Abs(s.StdDev-math.Sqrt(14.0/3)) > 1e-12 {
		t.Errorf("standard deviation: have %g", s.StdDev)
	}

	empty := sparse.ZerosDense(1, 2)
	empty.Elements[0], empty.Elements[1] = math.NaN(), math.NaN()
	s = Summarize(empty)
	if s.Valid != 0 || !math.IsNaN(s.Mean) || !math.IsNaN(s.Min) {
		t.Errorf("all-missing stats: have %+v", s)
	}
}
