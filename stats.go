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
	"math"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the pixels of a raster.
type Stats struct {
	// Valid is the number of pixels holding data and Missing the number
	// of pixels that will be written as nodata.
	Valid, Missing int

	// Min, Max, Mean and StdDev are computed over valid pixels only.
	// They are NaN when there are no valid pixels.
	Min, Max, Mean, StdDev float64
}

// Summarize computes statistics for a, treating NaN as missing.
// It must be called before NaN values are replaced by nodata.
func Summarize(a *sparse.DenseArray) Stats {
	valid := make([]float64, 0, len(a.Elements))
	for _, v := range a.Elements {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	s := Stats{
		Valid:   len(valid),
		Missing: len(a.Elements) - len(valid),
		Min:     math.NaN(),
		Max:     math.NaN(),
		Mean:    math.NaN(),
		StdDev:  math.NaN(),
	}
	if len(valid) == 0 {
		return s
	}
	s.Min = floats.Min(valid)
	s.Max = floats.Max(valid)
	s.Mean, s.StdDev = stat.MeanStdDev(valid, nil)
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("valid=%d missing=%d min=%g max=%g mean=%g", s.Valid, s.Missing, s.Min, s.Max, s.Mean)
}
