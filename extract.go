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
)

// Extract returns the [Ny, Nx] slice of variable v at timestep index.
// Fill and missing values are returned as NaN, CF packing
// (scale_factor, add_offset) is applied, and rows are ordered north to
// south.
func (d *Dataset) Extract(v string, index int) (*sparse.DenseArray, error) {
	dims := d.nc.dimensions(v)
	if dims == nil {
		return nil, &VariableNotFoundError{Path: d.Path, Variable: v}
	}
	if len(dims) != 3 || dims[0] != timeVar {
		return nil, &VariableNotFoundError{Path: d.Path, Variable: v,
			Reason: fmt.Sprintf("expected dimensions [time, y, x] but found %v", dims)}
	}
	if index < 0 || index >= len(d.Times) {
		return nil, &IndexError{Path: d.Path, Index: index, Len: len(d.Times)}
	}
	lengths, err := d.nc.lengths(v)
	if err != nil {
		return nil, fmt.Errorf("nctiff: extracting %s[%d] from %s: %v", v, index, d.Path, err)
	}
	ny, nx := lengths[1], lengths[2]
	if ny != d.Grid.Ny || nx != d.Grid.Nx {
		return nil, &VariableNotFoundError{Path: d.Path, Variable: v,
			Reason: fmt.Sprintf("grid %dx%d does not match dataset grid %dx%d", nx, ny, d.Grid.Nx, d.Grid.Ny)}
	}

	vals, kind, err := d.nc.readStep(v, index)
	if err != nil {
		return nil, fmt.Errorf("nctiff: extracting %s[%d] from %s: %v", v, index, d.Path, err)
	}
	if len(vals) != nx*ny {
		return nil, fmt.Errorf("nctiff: extracting %s[%d] from %s: read %d values but the grid has %d",
			v, index, d.Path, len(vals), nx*ny)
	}

	var missing []float64
	if fv, ok := attrFloat(d.nc, v, "_FillValue"); ok {
		missing = append(missing, fv)
	} else if fv, ok := defaultFill(kind); ok {
		missing = append(missing, fv)
	}
	if mv, ok := attrFloat(d.nc, v, "missing_value"); ok {
		missing = append(missing, mv)
	}
	scale, hasScale := attrFloat(d.nc, v, "scale_factor")
	offset, hasOffset := attrFloat(d.nc, v, "add_offset")

	data := sparse.ZerosDense(ny, nx)
	for j := 0; j < ny; j++ {
		row := j
		if d.Grid.BottomUp {
			row = ny - 1 - j
		}
		for i := 0; i < nx; i++ {
			val := vals[row*nx+i]
			if isMissing(val, missing) {
				val = math.NaN()
			} else {
				if hasScale {
					val *= scale
				}
				if hasOffset {
					val += offset
				}
			}
			data.Elements[j*nx+i] = val
		}
	}
	return data, nil
}

func isMissing(val float64, missing []float64) bool {
	for _, m := range missing {
		if val == m {
			return true
		}
	}
	return false
}
